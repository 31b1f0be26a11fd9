package cmd

import (
	"errors"
	"fmt"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

// cliError carries the process exit code for a failed command.
type cliError struct {
	code    int
	message string
	err     error
}

func (e *cliError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.message, e.err, e.code)
}

func (e *cliError) Unwrap() error { return e.err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	if err == nil {
		err = errors.New(message)
	}
	return &cliError{code: code, message: message, err: err}
}

// ExitCode returns the exit code carried by err, or 1 for errors without one.
func ExitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return exitFailure
}
