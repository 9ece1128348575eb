package sqlconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cuerrors "github.com/cloudutil/cloudutil/internal/errors"
)

func TestValidateDocumentAcceptsWellFormed(t *testing.T) {
	doc := []byte(`
provider:
  name: postgres
  version: 16
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
    password: pw
    privileges:
      - db: app
        readonly: true
        tables: [ALL]
`)
	assert.NoError(t, ValidateDocument(doc))
}

func TestValidateDocumentRejections(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		hint string
	}{
		{
			name: "missing provider section",
			doc:  `database: {}`,
			hint: "provider",
		},
		{
			name: "port as string",
			doc: `
provider: {name: postgres, host: h, port: "5432", username: u, password: p}
database: {}`,
			hint: "port",
		},
		{
			name: "privilege without db",
			doc: `
provider: {name: postgres, host: h, port: 5432, username: u, password: p}
database: {}
users:
  - name: x
    password: p
    privileges:
      - readonly: true`,
			hint: "db",
		},
		{
			name: "tables as scalar",
			doc: `
provider: {name: postgres, host: h, port: 5432, username: u, password: p}
database: {}
users:
  - name: x
    password: p
    privileges:
      - db: app
        tables: ALL`,
			hint: "tables",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument([]byte(tt.doc))
			require.Error(t, err)

			var ce cuerrors.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Contains(t, ce.Message, tt.hint)
		})
	}
}

func TestValidateDocumentInvalidYAML(t *testing.T) {
	err := ValidateDocument([]byte("provider: [unclosed"))
	require.Error(t, err)

	var ce cuerrors.ConfigError
	assert.ErrorAs(t, err, &ce)
}
