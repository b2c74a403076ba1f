package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	sent []string
	err  error
}

func (m *mockSender) Relay(ctx context.Context, command string) error {
	m.sent = append(m.sent, command)
	return m.err
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"relay1_on", "relay1_off", "relay2_on", " RELAY2_OFF "} {
		c, err := ParseCommand(s)
		require.NoError(t, err, s)
		assert.True(t, c.Valid())
	}
	for _, s := range []string{"", "relay3_on", "relay1", "on"} {
		_, err := ParseCommand(s)
		assert.ErrorIs(t, err, ErrInvalidCommand, s)
	}
}

func TestFor(t *testing.T) {
	t.Parallel()

	c, err := For(1, true)
	require.NoError(t, err)
	assert.Equal(t, Relay1On, c)
	c, err = For(2, false)
	require.NoError(t, err)
	assert.Equal(t, Relay2Off, c)
	_, err = For(3, true)
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestCommanderSend(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		sender := new(mockSender)
		var observed []Command
		c := NewCommander(sender, nil, func(cmd Command, err error) {
			assert.NoError(t, err)
			observed = append(observed, cmd)
		})
		require.NoError(t, c.Send(context.Background(), Relay2On))
		assert.Equal(t, []string{"relay2_on"}, sender.sent)
		assert.Equal(t, []Command{Relay2On}, observed)
	})
	t.Run("failure", func(t *testing.T) {
		t.Parallel()

		sender := &mockSender{err: errors.New("connection refused")}
		c := NewCommander(sender, nil, nil)
		assert.EqualError(t, c.Send(context.Background(), Relay1Off), "connection refused")
	})
	t.Run("invalid command is not sent", func(t *testing.T) {
		t.Parallel()

		sender := new(mockSender)
		c := NewCommander(sender, nil, nil)
		assert.ErrorIs(t, c.Send(context.Background(), Command("pump_on")), ErrInvalidCommand)
		assert.Empty(t, sender.sent)
	})
}
