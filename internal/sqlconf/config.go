// Package sqlconf implements declarative SQL server provisioning: given a
// desired-state configuration (databases, extensions, users, privileges) it
// inspects live server state and applies the minimal set of changes to
// converge, reporting exactly what changed.
package sqlconf

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	cuerrors "github.com/cloudutil/cloudutil/internal/errors"
)

// DefaultSchema is the schema privileges apply to when none is configured.
const DefaultSchema = "public"

// AllTables is the sentinel table name meaning every existing and future
// table in the schema.
const AllTables = "ALL"

// EngineVersion accepts both quoted and bare YAML version tags ("16" or 16).
type EngineVersion string

func (v *EngineVersion) UnmarshalYAML(value *yaml.Node) error {
	*v = EngineVersion(value.Value)
	return nil
}

// ProviderConfig holds the connection parameters for the target server.
// Username and password are fully resolved (no ${VAR} placeholders) by the
// time a provider sees them; Parse enforces that.
type ProviderConfig struct {
	Name     string        `yaml:"name"`
	Version  EngineVersion `yaml:"version"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Cert     string        `yaml:"cert,omitempty"`
}

// ExtensionConfig names an engine extension module. No version pinning:
// latest compatible is always desired.
type ExtensionConfig struct {
	Name string `yaml:"name"`
}

// DatabaseConfig describes one desired database.
type DatabaseConfig struct {
	Name       string            `yaml:"name"`
	Create     bool              `yaml:"create"`
	Extensions []ExtensionConfig `yaml:"extensions"`
}

func (d *DatabaseConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw DatabaseConfig
	tmp := raw{Create: true}
	if err := value.Decode(&tmp); err != nil {
		return err
	}
	*d = DatabaseConfig(tmp)
	return nil
}

// DatabaseList preserves the declared order of the `database` mapping while
// enforcing name uniqueness through the mapping keys.
type DatabaseList []DatabaseConfig

func (l *DatabaseList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("database must be a mapping of database name to settings")
	}

	out := make([]DatabaseConfig, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value

		var db DatabaseConfig
		if err := value.Content[i+1].Decode(&db); err != nil {
			return fmt.Errorf("database %q: %w", key, err)
		}
		if db.Name == "" {
			db.Name = key
		} else if db.Name != key {
			return cuerrors.ConfigError{
				Field:   "database." + key + ".name",
				Value:   db.Name,
				Message: "name must match the mapping key",
			}
		}
		out = append(out, db)
	}
	*l = out
	return nil
}

// PrivilegeConfig describes one grant entry for a user.
type PrivilegeConfig struct {
	Database  string   `yaml:"db"`
	Schema    string   `yaml:"schema"`
	ReadWrite bool     `yaml:"readwrite"`
	ReadOnly  bool     `yaml:"readonly"`
	Tables    []string `yaml:"tables"`
}

// AllTables reports whether the entry targets every table in the schema via
// the "ALL" sentinel.
func (p PrivilegeConfig) AllTables() bool {
	for _, t := range p.Tables {
		if t == AllTables {
			return true
		}
	}
	return false
}

// Access returns the table-level access for this entry: "readwrite",
// "readonly", or "connect" when neither flag is set.
func (p PrivilegeConfig) Access() string {
	switch {
	case p.ReadWrite:
		return "readwrite"
	case p.ReadOnly:
		return "readonly"
	default:
		return "connect"
	}
}

// UserConfig describes one desired login role and its grants.
type UserConfig struct {
	Name       string            `yaml:"name"`
	Password   string            `yaml:"password"`
	Privileges []PrivilegeConfig `yaml:"privileges"`
}

// Config is the validated, immutable desired-state description consumed by
// a Provider. Build one with Load or Parse, never by hand from raw YAML.
type Config struct {
	Provider  ProviderConfig `yaml:"provider"`
	Databases DatabaseList   `yaml:"database"`
	Users     []UserConfig   `yaml:"users"`
}

// Load reads, parses, resolves, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cuerrors.ConfigError{
				Field:      "config-file",
				Value:      path,
				Message:    "configuration file not found",
				Suggestion: "Check the path passed to --config-file",
			}
		}
		return nil, cuerrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}
	return Parse(data)
}

// Parse unmarshals a configuration document, resolves ${VAR} references
// against the environment, and validates the result. Any unresolved
// placeholder or structural problem fails here, before reconciliation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		if ce, ok := err.(cuerrors.ConfigError); ok {
			return nil, ce
		}
		return nil, cuerrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or duplicate database names",
		}
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolve expands ${VAR} placeholders in credential fields.
func (c *Config) resolve() error {
	var err error
	if c.Provider.Username, err = resolveEnv(c.Provider.Username, "provider.username"); err != nil {
		return err
	}
	if c.Provider.Password, err = resolveEnv(c.Provider.Password, "provider.password"); err != nil {
		return err
	}
	for i := range c.Users {
		field := fmt.Sprintf("users[%d].password", i)
		if c.Users[i].Password, err = resolveEnv(c.Users[i].Password, field); err != nil {
			return err
		}
	}
	return nil
}

func resolveEnv(value, field string) (string, error) {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value, nil
	}
	name := value[2 : len(value)-1]
	resolved, ok := os.LookupEnv(name)
	if !ok {
		return "", cuerrors.ConfigError{
			Field:      field,
			Message:    fmt.Sprintf("environment variable '%s' is not set", name),
			Suggestion: fmt.Sprintf("Export %s before running, or put the value in the file directly", name),
		}
	}
	return resolved, nil
}

func (c *Config) validate() error {
	if c.Provider.Name == "" {
		return cuerrors.ConfigError{
			Field:      "provider.name",
			Message:    "provider name is required",
			Suggestion: "Set provider.name to one of: " + strings.Join(ProviderNames(), ", "),
		}
	}
	if c.Provider.Host == "" {
		return cuerrors.ConfigError{Field: "provider.host", Message: "host is required"}
	}
	if c.Provider.Port < 1 || c.Provider.Port > 65535 {
		return cuerrors.ConfigError{
			Field:      "provider.port",
			Value:      c.Provider.Port,
			Message:    "port must be between 1 and 65535",
			Suggestion: "Use the server port, e.g. 5432 for PostgreSQL",
		}
	}
	if c.Provider.Username == "" {
		return cuerrors.ConfigError{Field: "provider.username", Message: "username is required"}
	}

	for _, db := range c.Databases {
		for _, ext := range db.Extensions {
			if ext.Name == "" {
				return cuerrors.ConfigError{
					Field:   "database." + db.Name + ".extensions",
					Message: "extension name must not be empty",
				}
			}
		}
	}

	for i, user := range c.Users {
		if user.Name == "" {
			return cuerrors.ConfigError{
				Field:   fmt.Sprintf("users[%d].name", i),
				Message: "user name is required",
			}
		}
		for j := range user.Privileges {
			priv := &c.Users[i].Privileges[j]
			if priv.Schema == "" {
				priv.Schema = DefaultSchema
			}
			if priv.Database == "" {
				return cuerrors.ConfigError{
					Field:   fmt.Sprintf("users[%d].privileges[%d].db", i, j),
					Message: "privilege target database is required",
				}
			}
			if priv.ReadWrite && priv.ReadOnly {
				return cuerrors.ConfigError{
					Field:      fmt.Sprintf("users[%d].privileges[%d]", i, j),
					Message:    "readwrite and readonly are mutually exclusive",
					Suggestion: "Set at most one of readwrite/readonly to true",
				}
			}
		}
	}
	return nil
}
