package commandstructure

import "context"

// Command is an API command bound to its parameters
type Command interface {
	Name() string
	Execute(ctx context.Context) (any, error)
}

// CommandFactory creates a command from request parameters
type CommandFactory func(params map[string]any) (Command, error)

// CommandFunc adapts a function to the Command interface
type CommandFunc struct {
	name string
	fn   func(ctx context.Context) (any, error)
}

func NewCommandFunc(name string, fn func(ctx context.Context) (any, error)) *CommandFunc {
	return &CommandFunc{name: name, fn: fn}
}

func (c *CommandFunc) Name() string {
	return c.name
}

func (c *CommandFunc) Execute(ctx context.Context) (any, error) {
	return c.fn(ctx)
}
