package sqlconf

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	cuerrors "github.com/cloudutil/cloudutil/internal/errors"
	"github.com/cloudutil/cloudutil/internal/logging"
)

// adminDatabase is the default database used for administrative statements.
const adminDatabase = "postgres"

// PostgresProvider reconciles a PostgreSQL server. It keeps one long-lived
// administrative connection for server-level statements and opens short,
// scoped connections for statements that must run inside a specific
// database (extensions and grants).
type PostgresProvider struct {
	cfg    *Config
	log    *logging.Logger
	report *Reporter
	admin  *sql.DB

	// open is swapped out by tests to inject mocked connections.
	open func(dsn string) (*sql.DB, error)
}

// NewPostgres creates a PostgreSQL provider for the given desired state.
func NewPostgres(cfg *Config, logger *logging.Logger) *PostgresProvider {
	return &PostgresProvider{
		cfg:    cfg,
		log:    logger,
		report: NewReporter(),
		open: func(dsn string) (*sql.DB, error) {
			return sql.Open("postgres", dsn)
		},
	}
}

// Report returns the change log for the current run.
func (p *PostgresProvider) Report() *Reporter {
	return p.report
}

// dsn builds a connection string for the named database. When a client
// certificate is configured the connection requires full verification and
// never falls back to an unverified mode.
func (p *PostgresProvider) dsn(database string) string {
	prov := p.cfg.Provider
	parts := []string{
		fmt.Sprintf("host=%s", prov.Host),
		fmt.Sprintf("port=%d", prov.Port),
		fmt.Sprintf("user=%s", prov.Username),
		fmt.Sprintf("dbname=%s", database),
	}
	if prov.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", prov.Password))
	}
	if prov.Cert != "" {
		parts = append(parts, "sslmode=verify-full", fmt.Sprintf("sslrootcert=%s", prov.Cert))
	} else {
		parts = append(parts, "sslmode=prefer")
	}
	return strings.Join(parts, " ")
}

// Connect establishes the administrative connection. Failure here is fatal
// for the whole run; there is no retry.
func (p *PostgresProvider) Connect(ctx context.Context) error {
	prov := p.cfg.Provider

	db, err := p.open(p.dsn(adminDatabase))
	if err == nil {
		err = db.PingContext(ctx)
	}
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return cuerrors.ConnectionError{Host: prov.Host, Port: prov.Port, Err: err}
	}

	p.admin = db
	p.log.Info("Connected to PostgreSQL at %s:%d", prov.Host, prov.Port)
	return nil
}

// Disconnect releases the administrative connection. Scoped connections are
// closed by withDatabase and never outlive their call.
func (p *PostgresProvider) Disconnect() error {
	if p.admin == nil {
		return nil
	}
	err := p.admin.Close()
	p.admin = nil
	p.log.Debug("Disconnected from PostgreSQL")
	return err
}

// withDatabase runs fn against a connection scoped to the named database.
// The connection is released on every exit path; callers never manage its
// lifetime.
func (p *PostgresProvider) withDatabase(ctx context.Context, name string, fn func(db *sql.DB) error) error {
	db, err := p.open(p.dsn(name))
	if err != nil {
		return fmt.Errorf("connect to database %q: %w", name, err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connect to database %q: %w", name, err)
	}
	return fn(db)
}

// ReconcileDatabase probes for the database and converges existence and
// ownership. The desired owner is the administrative user.
func (p *PostgresProvider) ReconcileDatabase(ctx context.Context, db DatabaseConfig) error {
	owner := p.cfg.Provider.Username

	var current string
	err := p.admin.QueryRowContext(ctx,
		"SELECT pg_catalog.pg_get_userbyid(datdba) FROM pg_database WHERE datname = $1",
		db.Name).Scan(&current)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		stmt := fmt.Sprintf("CREATE DATABASE %s OWNER %s",
			pq.QuoteIdentifier(db.Name), pq.QuoteIdentifier(owner))
		if _, err := p.admin.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create database %q: %w", db.Name, err)
		}
		p.report.Record(OpCreate, ResourceDatabase, db.Name, map[string]interface{}{"owner": owner})
		p.log.Info("Created database %q owned by %q", db.Name, owner)

	case err != nil:
		return fmt.Errorf("probe database %q: %w", db.Name, err)

	case current == owner:
		p.report.Record(OpSkip, ResourceDatabase, db.Name, nil)
		p.log.Debug("Database %q already owned by %q", db.Name, owner)

	default:
		stmt := fmt.Sprintf("ALTER DATABASE %s OWNER TO %s",
			pq.QuoteIdentifier(db.Name), pq.QuoteIdentifier(owner))
		if _, err := p.admin.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("alter database %q owner: %w", db.Name, err)
		}
		p.report.Record(OpUpdate, ResourceDatabase, db.Name, map[string]interface{}{
			"owner": map[string]string{"old": current, "new": owner},
		})
		p.log.Info("Reassigned database %q owner from %q to %q", db.Name, current, owner)
	}
	return nil
}

// ReconcileExtensions converges the extension set inside one database.
// A failing extension never aborts the run: install failures are recorded
// through the error path, and update-to-latest failures (no newer version,
// update unsupported) are recorded as skips.
func (p *PostgresProvider) ReconcileExtensions(ctx context.Context, dbName string, exts []ExtensionConfig) error {
	return p.withDatabase(ctx, dbName, func(db *sql.DB) error {
		for _, ext := range exts {
			name := dbName + "/" + ext.Name

			var one int
			err := db.QueryRowContext(ctx,
				"SELECT 1 FROM pg_extension WHERE extname = $1", ext.Name).Scan(&one)

			switch {
			case errors.Is(err, sql.ErrNoRows):
				stmt := fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s", pq.QuoteIdentifier(ext.Name))
				if _, err := db.ExecContext(ctx, stmt); err != nil {
					p.report.Fail(ResourceExtension, name, err)
					p.log.Error("Failed to install extension %q in %q: %v", ext.Name, dbName, err)
					continue
				}
				p.report.Record(OpCreate, ResourceExtension, name, nil)
				p.log.Info("Installed extension %q in database %q", ext.Name, dbName)

			case err != nil:
				p.report.Fail(ResourceExtension, name, err)
				p.log.Error("Failed to probe extension %q in %q: %v", ext.Name, dbName, err)

			default:
				stmt := fmt.Sprintf("ALTER EXTENSION %s UPDATE", pq.QuoteIdentifier(ext.Name))
				if _, err := db.ExecContext(ctx, stmt); err != nil {
					// Usually "already at latest"; treated as non-actionable noise.
					p.report.Record(OpSkip, ResourceExtension, name, nil)
					p.log.Debug("Extension %q in %q left as-is: %v", ext.Name, dbName, err)
					continue
				}
				p.report.Record(OpUpdate, ResourceExtension, name, nil)
				p.log.Info("Updated extension %q in database %q", ext.Name, dbName)
			}
		}
		return nil
	})
}

// ReconcileUser converges one login role. The password is declared, not
// diffed: an existing role always gets the desired password re-asserted.
func (p *PostgresProvider) ReconcileUser(ctx context.Context, user UserConfig) error {
	var one int
	err := p.admin.QueryRowContext(ctx,
		"SELECT 1 FROM pg_roles WHERE rolname = $1", user.Name).Scan(&one)

	// The engine rejects bind parameters in DDL, so the password is attached
	// as a safely quoted literal, never interpolated raw.
	password := pq.QuoteLiteral(user.Password)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		stmt := fmt.Sprintf("CREATE USER %s WITH PASSWORD %s", pq.QuoteIdentifier(user.Name), password)
		if _, err := p.admin.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create user %q: %w", user.Name, err)
		}
		p.report.Record(OpCreate, ResourceUser, user.Name, nil)
		p.log.Info("Created user %q", user.Name)

	case err != nil:
		return fmt.Errorf("probe user %q: %w", user.Name, err)

	default:
		stmt := fmt.Sprintf("ALTER USER %s WITH PASSWORD %s", pq.QuoteIdentifier(user.Name), password)
		if _, err := p.admin.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("alter user %q: %w", user.Name, err)
		}
		p.report.Record(OpUpdate, ResourceUser, user.Name, map[string]interface{}{"password": "reasserted"})
		p.log.Debug("Re-asserted password for user %q", user.Name)
	}
	return nil
}

// ReconcilePrivilege applies one grant entry. Grants have no live-state
// probe; the statements are idempotent and are always re-applied. The fixed
// sub-order is: CONNECT on the database, USAGE on the schema, CREATE on the
// schema for readwrite, then table-level grants.
func (p *PostgresProvider) ReconcilePrivilege(ctx context.Context, userName string, priv PrivilegeConfig) error {
	return p.withDatabase(ctx, priv.Database, func(db *sql.DB) error {
		user := pq.QuoteIdentifier(userName)
		schema := pq.QuoteIdentifier(priv.Schema)

		exec := func(format string, args ...interface{}) error {
			_, err := db.ExecContext(ctx, fmt.Sprintf(format, args...))
			return err
		}

		if err := exec("GRANT CONNECT ON DATABASE %s TO %s", pq.QuoteIdentifier(priv.Database), user); err != nil {
			return fmt.Errorf("grant connect on %q: %w", priv.Database, err)
		}
		if err := exec("GRANT USAGE ON SCHEMA %s TO %s", schema, user); err != nil {
			return fmt.Errorf("grant usage on schema %q: %w", priv.Schema, err)
		}
		if priv.ReadWrite {
			if err := exec("GRANT CREATE ON SCHEMA %s TO %s", schema, user); err != nil {
				return fmt.Errorf("grant create on schema %q: %w", priv.Schema, err)
			}
		}

		detail := map[string]interface{}{
			"access": priv.Access(),
			"tables": 0,
		}

		if set := tablePrivileges(priv); set != "" {
			if priv.AllTables() {
				// Cover every current table, and set a standing default so
				// tables created later inherit the same grant without
				// re-running reconciliation.
				if err := exec("GRANT %s ON ALL TABLES IN SCHEMA %s TO %s", set, schema, user); err != nil {
					return fmt.Errorf("grant on all tables in %q: %w", priv.Schema, err)
				}
				if err := exec("ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT %s ON TABLES TO %s", schema, set, user); err != nil {
					return fmt.Errorf("alter default privileges in %q: %w", priv.Schema, err)
				}
				detail["tables"] = AllTables
			} else {
				for _, table := range priv.Tables {
					if err := exec("GRANT %s ON TABLE %s.%s TO %s", set, schema, pq.QuoteIdentifier(table), user); err != nil {
						return fmt.Errorf("grant on table %q.%q: %w", priv.Schema, table, err)
					}
				}
				detail["tables"] = len(priv.Tables)
			}
		}

		p.report.Record(OpCreate, ResourcePrivilege, privilegeName(userName, priv), detail)
		p.log.Info("Granted %s access on %s.%s to %q", priv.Access(), priv.Database, priv.Schema, userName)
		return nil
	})
}

// Execute runs the four reconciliation phases in order.
func (p *PostgresProvider) Execute(ctx context.Context) error {
	p.log.Info("Starting PostgreSQL reconciliation")
	if err := runPhases(ctx, p, p.cfg, p.log); err != nil {
		return err
	}
	p.log.Info("PostgreSQL reconciliation complete: %s", p.report.Summary())
	return nil
}

// tablePrivileges returns the grant list for the entry's access level, or
// empty when only CONNECT/USAGE apply.
func tablePrivileges(priv PrivilegeConfig) string {
	switch {
	case priv.ReadWrite:
		return "SELECT, INSERT, UPDATE, DELETE"
	case priv.ReadOnly:
		return "SELECT"
	default:
		return ""
	}
}
