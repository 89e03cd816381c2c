package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/seantiz/tally/internal/journal"
)

// Command is a report that runs against a journal.
type Command interface {
	// Info describes the command for listings and alias resolution.
	Info() Info

	// Run produces the complete report text. Args holds every token after
	// the command name, flags included.
	Run(ctx context.Context, req Request) (string, error)
}

// Info describes a registered command.
type Info struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	Description string   `json:"description"`
}

// Request is the input to a single command run.
type Request struct {
	Journal *journal.Journal
	Args    []string
}

// Registry resolves command names and aliases to commands.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
	names    map[string]string // alias or name -> canonical name
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
		names:    make(map[string]string),
	}
}

// Register adds c under its name and aliases, replacing earlier registrations
// of the same names.
func (r *Registry) Register(c Command) {
	info := c.Info()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[info.Name] = c
	r.names[info.Name] = info.Name
	for _, alias := range info.Aliases {
		r.names[alias] = info.Name
	}
}

// Resolve returns the command registered under name or one of its aliases.
func (r *Registry) Resolve(name string) (Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	canonical, ok := r.names[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return r.commands[canonical], nil
}

// List returns information about all registered commands, sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.commands))
	for _, c := range r.commands {
		infos = append(infos, c.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// NewBuiltinRegistry returns a registry holding every built-in report.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}

// RegisterBuiltins adds the built-in reports to r.
func RegisterBuiltins(r *Registry) {
	r.Register(balanceCommand{})
	r.Register(registerCommand{})
	r.Register(printCommand{})
	r.Register(accountsCommand{})
	r.Register(payeesCommand{})
	r.Register(commoditiesCommand{})
	r.Register(pricesCommand{})
	r.Register(statsCommand{})
}

// joinLines renders lines with a trailing newline, or "" for no lines.
func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
