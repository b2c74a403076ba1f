package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

var ErrInvalidCommand = errors.New("invalid relay command")

type Command string

const (
	Relay1On  Command = "relay1_on"
	Relay1Off Command = "relay1_off"
	Relay2On  Command = "relay2_on"
	Relay2Off Command = "relay2_off"
)

var Commands = []Command{Relay1On, Relay1Off, Relay2On, Relay2Off}

func (c Command) Valid() bool {
	for _, valid := range Commands {
		if c == valid {
			return true
		}
	}
	return false
}

// ParseCommand validates a command token
func ParseCommand(s string) (Command, error) {
	c := Command(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCommand, s)
	}
	return c, nil
}

// For returns the command switching relay 1 or 2 on or off
func For(relay int, on bool) (Command, error) {
	if relay != 1 && relay != 2 {
		return "", fmt.Errorf("%w: unknown relay %d", ErrInvalidCommand, relay)
	}
	state := "off"
	if on {
		state = "on"
	}
	return Command(fmt.Sprintf("relay%d_%s", relay, state)), nil
}

// Sender delivers a raw command token to the server
type Sender interface {
	Relay(ctx context.Context, command string) error
}

// Observer is notified of every command result
type Observer func(cmd Command, err error)

type Commander struct {
	sender   Sender
	logger   *slog.Logger
	observer Observer
}

func NewCommander(sender Sender, logger *slog.Logger, observer Observer) *Commander {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Commander{sender: sender, logger: logger, observer: observer}
}

// Send posts cmd to the server. There is no retry; the server applies the last
// command it receives.
func (c *Commander) Send(ctx context.Context, cmd Command) error {
	if !cmd.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCommand, string(cmd))
	}
	err := c.sender.Relay(ctx, string(cmd))
	if c.observer != nil {
		c.observer(cmd, err)
	}
	if err != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "Relay command failed", slog.String("command", string(cmd)), slog.Any("error", err))
		return err
	}
	c.logger.LogAttrs(ctx, slog.LevelInfo, "Relay command sent", slog.String("command", string(cmd)))
	return nil
}
