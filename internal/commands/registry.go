// Package commands is the chat command surface of open sessions: a registry
// of named commands and a dispatcher that routes prefixed inbound messages.
package commands

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	ErrInvalidName      = errors.New("commands: invalid command name")
	ErrDuplicateCommand = errors.New("commands: command already registered")
)

// Request carries one invocation into a command.
type Request struct {
	SessionID string
	From      string
	Args      []string
}

// Command is one chat command. Run returns the reply text.
type Command struct {
	Name string
	Help string
	Run  func(ctx context.Context, req Request) (string, error)
}

// Registry holds the commands of one process. Construct one and inject it;
// registration after dispatch has started is allowed.
type Registry struct {
	mu   sync.RWMutex
	cmds map[string]Command
}

func NewRegistry() *Registry {
	return &Registry{cmds: make(map[string]Command)}
}

func (r *Registry) Register(cmd Command) error {
	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return ErrInvalidName
	}
	if cmd.Run == nil {
		return ErrInvalidName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cmds[name]; ok {
		return ErrDuplicateCommand
	}
	cmd.Name = name
	r.cmds[name] = cmd
	return nil
}

func (r *Registry) Get(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.cmds[strings.ToLower(name)]
	return cmd, ok
}

// Names returns registered command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.cmds))
	for name := range r.cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) helpLines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.cmds))
	for name := range r.cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		cmd := r.cmds[name]
		if cmd.Help == "" {
			lines = append(lines, name)
			continue
		}
		lines = append(lines, name+" - "+cmd.Help)
	}
	return lines
}
