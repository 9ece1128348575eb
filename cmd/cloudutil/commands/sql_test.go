package commands_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudutil/cloudutil/cmd/cloudutil/commands"
	cuerrors "github.com/cloudutil/cloudutil/internal/errors"
	"github.com/cloudutil/cloudutil/internal/logging"
)

func newTestRoot() (*commands.Root, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &commands.Root{
		Logger: logging.NewWithWriter(&bytes.Buffer{}, false, true),
		Out:    out,
	}, out
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validSQLConfig = `
provider:
  name: postgres
  host: db.internal
  port: 5432
  username: svc
  password: pw
database:
  app:
    extensions:
      - name: postgis
users:
  - name: ro_user
    password: reader-pw
    privileges:
      - db: app
        readonly: true
        tables: [ALL]
`

func TestSQLCommandTree(t *testing.T) {
	root, _ := newTestRoot()
	cmd := commands.NewSQLCommand(root)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "execute")
	assert.Contains(t, names, "validate")
}

func TestSQLValidateAcceptsValidFile(t *testing.T) {
	root, _ := newTestRoot()
	path := writeConfig(t, validSQLConfig)

	cmd := commands.NewSQLCommand(root)
	cmd.SetArgs([]string{"validate", path})
	require.NoError(t, cmd.Execute())
}

func TestSQLValidateRejectsSchemaViolation(t *testing.T) {
	root, _ := newTestRoot()
	path := writeConfig(t, `
provider:
  name: postgres
  host: db.internal
  port: "not-a-port"
  username: svc
  password: pw
database: {}
`)

	cmd := commands.NewSQLCommand(root)
	cmd.SetArgs([]string{"validate", path})
	cmd.SilenceErrors = true

	err := cmd.Execute()
	require.Error(t, err)

	var ce cuerrors.ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestSQLValidateRejectsStructuralViolation(t *testing.T) {
	root, _ := newTestRoot()
	// Schema-valid but structurally wrong: both access flags set.
	path := writeConfig(t, `
provider:
  name: postgres
  host: db.internal
  port: 5432
  username: svc
  password: pw
database: {}
users:
  - name: x
    password: p
    privileges:
      - db: app
        readwrite: true
        readonly: true
`)

	cmd := commands.NewSQLCommand(root)
	cmd.SetArgs([]string{"validate", path})
	cmd.SilenceErrors = true

	err := cmd.Execute()
	require.Error(t, err)

	var ce cuerrors.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "mutually exclusive")
}

func TestSQLValidateMissingFile(t *testing.T) {
	root, _ := newTestRoot()

	cmd := commands.NewSQLCommand(root)
	cmd.SetArgs([]string{"validate", "/nonexistent/config.yaml"})
	cmd.SilenceErrors = true

	err := cmd.Execute()
	require.Error(t, err)

	var ue cuerrors.UserError
	assert.ErrorAs(t, err, &ue)
}

func TestSQLExecuteRequiresConfigFlag(t *testing.T) {
	root, _ := newTestRoot()

	cmd := commands.NewSQLCommand(root)
	cmd.SetArgs([]string{"execute"})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	err := cmd.Execute()
	require.Error(t, err)

	var ue cuerrors.UserError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Suggestion, "-c")
}

func TestSQLExecuteRejectsUnknownProvider(t *testing.T) {
	root, _ := newTestRoot()
	path := writeConfig(t, `
provider:
  name: oracle
  host: db.internal
  port: 1521
  username: svc
  password: pw
database: {}
`)

	cmd := commands.NewSQLCommand(root)
	cmd.SetArgs([]string{"execute", "-c", path})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	err := cmd.Execute()
	require.Error(t, err)

	var ce cuerrors.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "provider.name", ce.Field)
}
