// Package async runs background work that must not take the process down.
package async

import "runtime/debug"

// ErrorLogger receives failures from background goroutines.
type ErrorLogger interface {
	Error(format string, args ...any)
}

// Go runs fn in its own goroutine. A returned error is logged under name;
// a panic is recovered and logged with its stack.
func Go(logger ErrorLogger, name string, fn func() error) {
	go func() {
		defer Recover(logger, name)
		if err := fn(); err != nil && logger != nil {
			logger.Error("background %s stopped: %v", name, err)
		}
	}()
}

// Recover must be deferred. It swallows a panic and reports it to logger.
func Recover(logger ErrorLogger, name string) {
	r := recover()
	if r == nil || logger == nil {
		return
	}
	logger.Error("goroutine panic [%s]: %v\n%s", name, r, debug.Stack())
}
