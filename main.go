package main

import (
	"os"

	"github.com/lehydrosys/hydromon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
