// Package fuzzy provides interactive selection by piping candidates through
// an external fzf process.
package fuzzy

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"

	cuerrors "github.com/cloudutil/cloudutil/internal/errors"
	"github.com/cloudutil/cloudutil/internal/logging"
)

// Runner executes an external command with the given stdin. It exists so
// tests can substitute a fake for the real fzf binary.
type Runner interface {
	Run(ctx context.Context, name string, args []string, input string) (stdout string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args []string, input string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(input)
	cmd.Stderr = os.Stderr // fzf draws its UI on stderr

	var out bytes.Buffer
	cmd.Stdout = &out
	err := cmd.Run()
	return out.String(), err
}

// Selector runs interactive fuzzy selection over a list of items.
type Selector struct {
	runner Runner
	logger *logging.Logger
	multi  bool
}

// Option configures a Selector.
type Option func(*Selector)

// WithRunner substitutes the command runner (for tests).
func WithRunner(r Runner) Option {
	return func(s *Selector) { s.runner = r }
}

// WithMulti enables multi-selection (fzf -m).
func WithMulti(multi bool) Option {
	return func(s *Selector) { s.multi = multi }
}

// NewSelector creates a selector. Multi-selection is enabled by default,
// matching the original tooling behavior.
func NewSelector(logger *logging.Logger, opts ...Option) *Selector {
	s := &Selector{runner: execRunner{}, logger: logger, multi: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select presents items in fzf and returns the chosen lines. An empty input
// list and a cancelled selection both return an empty result, not an error.
func (s *Selector) Select(ctx context.Context, items []string, kind string) ([]string, error) {
	if len(items) == 0 {
		s.logger.Warn("No %ss found", kind)
		return nil, nil
	}

	s.logger.Info("Found %d %ss. Opening fzf for selection...", len(items), kind)

	args := []string{"-e"}
	if s.multi {
		args = append(args, "-m")
	}

	out, err := s.runner.Run(ctx, "fzf", args, strings.Join(items, "\n"))
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, cuerrors.WrapCommandNotFound("fzf", err)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 130 {
			// User cancelled with ctrl-c / esc.
			s.logger.Warn("No selection made")
			return nil, nil
		}
		return nil, cuerrors.UserError{
			Message:    "fzf selection failed",
			Details:    err.Error(),
			Suggestion: "Check that fzf runs correctly in this terminal",
			Err:        err,
		}
	}

	selected := strings.Split(strings.TrimSpace(out), "\n")
	if len(selected) == 1 && selected[0] == "" {
		s.logger.Warn("No selection made")
		return nil, nil
	}
	return selected, nil
}
