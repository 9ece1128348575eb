package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError is an error that should be shown to the user with helpful context.
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError reports an invalid configuration value. Configuration problems
// are rejected at load time, before any reconciliation begins.
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// ConnectionError reports a failure to establish or keep the administrative
// connection to a database server. Connection errors are fatal for the whole
// run and are never retried.
type ConnectionError struct {
	Host string
	Port int
	Err  error
}

func (e ConnectionError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("failed to connect to %s:%d: %v", e.Host, e.Port, e.Err)
	}
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnection reports whether err is (or wraps) a ConnectionError.
func IsConnection(err error) bool {
	var ce ConnectionError
	return errors.As(err, &ce)
}

// ResourceError reports a failure scoped to a single resource during
// reconciliation. It is caught at the reconciler boundary, recorded, and
// never aborts the remaining resources.
type ResourceError struct {
	Resource string // database, extension, user, privilege
	Name     string
	Err      error
}

func (e ResourceError) Error() string {
	return fmt.Sprintf("failed to reconcile %s '%s': %v", e.Resource, e.Name, e.Err)
}

func (e ResourceError) Unwrap() error {
	return e.Err
}

// CommandError represents an external command execution error.
type CommandError struct {
	Command    string
	ExitCode   int
	Message    string
	Suggestion string
}

func (e CommandError) Error() string {
	msg := fmt.Sprintf("Command '%s' failed", e.Command)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit code: %d)", e.ExitCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// WrapCommandNotFound wraps a missing-binary error with an install hint.
func WrapCommandNotFound(command string, err error) error {
	suggestions := map[string]string{
		"fzf": "Install fzf from https://github.com/junegunn/fzf",
		"git": "Install Git from https://git-scm.com/",
	}

	suggestion := suggestions[command]
	if suggestion == "" {
		suggestion = fmt.Sprintf("Make sure '%s' is installed and in your PATH", command)
	}

	return CommandError{
		Command:    command,
		Message:    "command not found",
		Suggestion: suggestion,
	}
}
