package execution

import "context"

// Operation is the unit of work supervised by the executor.
type Operation func(ctx context.Context) (any, error)

// Command is a named operation. The name doubles as the task identifier for
// checkpoints and metrics.
type Command interface {
	Name() string
	Run(ctx context.Context) (any, error)
}

type boundCommand[A any] struct {
	name string
	args A
	fn   func(ctx context.Context, args A) (any, error)
}

func (c *boundCommand[A]) Name() string { return c.name }

func (c *boundCommand[A]) Run(ctx context.Context) (any, error) {
	return c.fn(ctx, c.args)
}

// Bind returns a Command that calls fn with args each time it runs.
func Bind[A any](name string, args A, fn func(ctx context.Context, args A) (any, error)) Command {
	return &boundCommand[A]{name: name, args: args, fn: fn}
}

type funcCommand struct {
	name string
	op   Operation
}

func (c funcCommand) Name() string                         { return c.name }
func (c funcCommand) Run(ctx context.Context) (any, error) { return c.op(ctx) }

// NewCommand names an Operation.
func NewCommand(name string, op Operation) Command {
	return funcCommand{name: name, op: op}
}
