package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehydrosys/hydromon/pkg/relay"
)

func TestParseRelayArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		args []string
		want relay.Command
	}{
		{[]string{"1", "on"}, relay.Relay1On},
		{[]string{"2", "off"}, relay.Relay2Off},
		{[]string{"relay2_on"}, relay.Relay2On},
	}
	for _, tt := range tests {
		got, err := parseRelayArgs(tt.args)
		require.NoError(t, err, tt.args)
		assert.Equal(t, tt.want, got)
	}
	for _, args := range [][]string{{"3", "on"}, {"x", "on"}, {"1", "maybe"}, {"pump"}} {
		_, err := parseRelayArgs(args)
		assert.ErrorIs(t, err, relay.ErrInvalidCommand, args)
	}
}
