package commands

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tdamd/pairctl/internal/logging"
	"github.com/tdamd/pairctl/internal/session"
	"github.com/tdamd/pairctl/internal/transport"
)

// Dispatcher turns inbound chat messages into command invocations. Messages
// without the prefix are ignored; unknown commands get a pointer to the help
// command.
type Dispatcher struct {
	prefix   string
	registry *Registry
	log      zerolog.Logger
}

func NewDispatcher(prefix string, registry *Registry) *Dispatcher {
	if prefix == "" {
		prefix = "!"
	}
	return &Dispatcher{
		prefix:   prefix,
		registry: registry,
		log:      logging.Component("commands"),
	}
}

// Handler adapts the dispatcher to the session manager's message callback.
func (d *Dispatcher) Handler() session.MessageHandler {
	return func(ctx context.Context, h *session.Handle, msg transport.Message) {
		reply := d.dispatch(ctx, h.SessionID(), msg)
		if reply == "" {
			return
		}
		client := h.Client()
		if client == nil {
			return
		}
		if err := client.SendMessage(ctx, msg.From, reply); err != nil {
			d.log.Warn().Err(err).Str("session_id", h.SessionID()).Msg("reply failed")
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, sessionID string, msg transport.Message) string {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, d.prefix) {
		return ""
	}
	fields := strings.Fields(strings.TrimPrefix(text, d.prefix))
	if len(fields) == 0 {
		return ""
	}
	name := strings.ToLower(fields[0])

	cmd, ok := d.registry.Get(name)
	if !ok {
		return "Unknown command. Try " + d.prefix + "aide."
	}
	reply, err := cmd.Run(ctx, Request{
		SessionID: sessionID,
		From:      msg.From,
		Args:      fields[1:],
	})
	if err != nil {
		d.log.Warn().Err(err).Str("command", name).Str("session_id", sessionID).Msg("command failed")
		return "Command failed, try again later."
	}
	return reply
}
