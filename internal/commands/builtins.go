package commands

import (
	"context"
	"strings"
)

// RegisterBuiltins installs the stock command set.
func RegisterBuiltins(r *Registry, botName, prefix string) error {
	if botName == "" {
		botName = "pairctl"
	}
	if prefix == "" {
		prefix = "!"
	}

	builtins := []Command{
		{
			Name: "ping",
			Help: "liveness check",
			Run: func(ctx context.Context, req Request) (string, error) {
				return "pong", nil
			},
		},
		{
			Name: "menu",
			Help: "list available commands",
			Run: func(ctx context.Context, req Request) (string, error) {
				lines := []string{"*" + botName + "*"}
				for _, line := range r.helpLines() {
					lines = append(lines, prefix+line)
				}
				return strings.Join(lines, "\n"), nil
			},
		},
		{
			Name: "aide",
			Help: "how to use this bot",
			Run: func(ctx context.Context, req Request) (string, error) {
				return "Send " + prefix + "menu for the command list. Commands start with " + prefix + ".", nil
			},
		},
	}
	for _, cmd := range builtins {
		if err := r.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}
