// Package commands wires the cloudutil command tree.
package commands

import (
	"io"

	"github.com/cloudutil/cloudutil/internal/logging"
)

// Root carries the state shared by every command: the logger built from the
// persistent flags and the stream results are printed to.
type Root struct {
	Logger *logging.Logger
	Out    io.Writer
}
