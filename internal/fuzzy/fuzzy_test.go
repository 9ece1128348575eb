package fuzzy

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cuerrors "github.com/cloudutil/cloudutil/internal/errors"
	"github.com/cloudutil/cloudutil/internal/logging"
)

type fakeRunner struct {
	stdout   string
	err      error
	lastArgs []string
	lastIn   string
}

func (f *fakeRunner) Run(_ context.Context, _ string, args []string, input string) (string, error) {
	f.lastArgs = args
	f.lastIn = input
	return f.stdout, f.err
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(&bytes.Buffer{}, false, true)
}

func TestSelectReturnsChosenLines(t *testing.T) {
	runner := &fakeRunner{stdout: "/app/db/password\n/app/db/user\n"}
	s := NewSelector(testLogger(), WithRunner(runner))

	selected, err := s.Select(context.Background(), []string{"/app/db/password", "/app/db/user", "/app/api/key"}, "parameter")
	require.NoError(t, err)
	assert.Equal(t, []string{"/app/db/password", "/app/db/user"}, selected)
	assert.Contains(t, runner.lastArgs, "-m")
	assert.Equal(t, 3, len(strings.Split(runner.lastIn, "\n")))
}

func TestSelectSingleMode(t *testing.T) {
	runner := &fakeRunner{stdout: "prod-vault\n"}
	s := NewSelector(testLogger(), WithRunner(runner), WithMulti(false))

	selected, err := s.Select(context.Background(), []string{"prod-vault", "dev-vault"}, "vault")
	require.NoError(t, err)
	assert.Equal(t, []string{"prod-vault"}, selected)
	assert.NotContains(t, runner.lastArgs, "-m")
}

func TestSelectEmptyInput(t *testing.T) {
	s := NewSelector(testLogger(), WithRunner(&fakeRunner{}))

	selected, err := s.Select(context.Background(), nil, "secret")
	require.NoError(t, err)
	assert.Empty(t, selected)
}

func TestSelectNoSelectionMade(t *testing.T) {
	runner := &fakeRunner{stdout: "\n"}
	s := NewSelector(testLogger(), WithRunner(runner))

	selected, err := s.Select(context.Background(), []string{"a", "b"}, "item")
	require.NoError(t, err)
	assert.Empty(t, selected)
}

func TestSelectFzfMissing(t *testing.T) {
	runner := &fakeRunner{err: exec.ErrNotFound}
	s := NewSelector(testLogger(), WithRunner(runner))

	_, err := s.Select(context.Background(), []string{"a"}, "item")
	require.Error(t, err)

	var cmdErr cuerrors.CommandError
	assert.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "fzf", cmdErr.Command)
}
