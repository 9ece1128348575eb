package sqlconf

import (
	"context"
	"strings"

	cuerrors "github.com/cloudutil/cloudutil/internal/errors"
	"github.com/cloudutil/cloudutil/internal/logging"
)

// Provider is the capability contract one database engine implements.
// Adding support for a new engine means adding a variant of this interface,
// not a subclass hierarchy.
//
// Connect establishes the long-lived administrative connection; its failure
// is fatal for the whole run. The Reconcile methods compare desired against
// live state for one resource and record the outcome in the provider's
// Reporter. Execute drives all four phases in the fixed dependency order:
// databases, extensions, users, privileges.
type Provider interface {
	Connect(ctx context.Context) error
	Disconnect() error
	ReconcileDatabase(ctx context.Context, db DatabaseConfig) error
	ReconcileExtensions(ctx context.Context, dbName string, exts []ExtensionConfig) error
	ReconcileUser(ctx context.Context, user UserConfig) error
	ReconcilePrivilege(ctx context.Context, userName string, priv PrivilegeConfig) error
	Execute(ctx context.Context) error
	Report() *Reporter
}

// engineNames maps accepted provider names to canonical engines.
var engineNames = map[string]string{
	"postgres":   "postgres",
	"postgresql": "postgres",
	"mysql":      "mysql",
	"mariadb":    "mysql",
}

// ProviderNames lists the accepted provider name spellings.
func ProviderNames() []string {
	return []string{"postgres", "postgresql", "mysql", "mariadb"}
}

// New builds the provider variant selected by cfg.Provider.Name.
func New(cfg *Config, logger *logging.Logger) (Provider, error) {
	engine, ok := engineNames[strings.ToLower(cfg.Provider.Name)]
	if !ok {
		return nil, cuerrors.ConfigError{
			Field:      "provider.name",
			Value:      cfg.Provider.Name,
			Message:    "unsupported provider",
			Suggestion: "Supported providers: " + strings.Join(ProviderNames(), ", "),
		}
	}

	switch engine {
	case "postgres":
		return NewPostgres(cfg, logger), nil
	default:
		return NewMySQL(cfg, logger), nil
	}
}
