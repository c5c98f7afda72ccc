package commandstructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// ErrUnknownCommand is returned for command names that were never registered
var ErrUnknownCommand = errors.New("unknown command")

type registration struct {
	required []string
	factory  CommandFactory
}

// CommandRegistry maps command names to their factories and required parameters
type CommandRegistry struct {
	commands map[string]registration
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]registration),
	}
}

// Register adds a command factory. Required parameters are checked before the factory runs.
func (r *CommandRegistry) Register(name string, required []string, factory CommandFactory) error {
	if name == "" {
		return fmt.Errorf("command name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("command factory cannot be nil")
	}
	if r.IsRegistered(name) {
		return fmt.Errorf("command %s is already registered", name)
	}
	r.commands[name] = registration{required: required, factory: factory}
	return nil
}

// Create instantiates a command by name with the given parameters
func (r *CommandRegistry) Create(name string, params map[string]any) (Command, error) {
	reg, exists := r.commands[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnknownCommand, name, strings.Join(r.GetRegisteredNames(), ", "))
	}
	if err := ValidateRequiredParams(params, reg.required); err != nil {
		return nil, err
	}

	command, err := reg.factory(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create command %s: %w", name, err)
	}
	return command, nil
}

// Execute creates the named command and runs it
func (r *CommandRegistry) Execute(ctx context.Context, name string, params map[string]any) (any, error) {
	command, err := r.Create(name, params)
	if err != nil {
		return nil, err
	}

	slog.Debug("executing command", "command", command.Name())
	result, err := command.Execute(ctx)
	if err != nil {
		slog.Error("command failed", "command", command.Name(), "error", err)
		return nil, err
	}
	return result, nil
}

// IsRegistered checks if a command with the given name is registered
func (r *CommandRegistry) IsRegistered(name string) bool {
	_, exists := r.commands[name]
	return exists
}

// RequiredParams returns the required parameters of every registered command
func (r *CommandRegistry) RequiredParams() map[string][]string {
	out := make(map[string][]string, len(r.commands))
	for name, reg := range r.commands {
		out[name] = append([]string{}, reg.required...)
	}
	return out
}

// GetRegisteredNames returns the sorted names of all registered commands
func (r *CommandRegistry) GetRegisteredNames() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
