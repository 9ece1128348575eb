package sqlconf

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"

	cuerrors "github.com/cloudutil/cloudutil/internal/errors"
	"github.com/cloudutil/cloudutil/internal/logging"
)

// mysqlTLSKey names the driver-registered TLS configuration used when a
// client certificate is configured.
const mysqlTLSKey = "cloudutil"

// MySQLProvider reconciles a MySQL/MariaDB server. MySQL grants on db.*
// already cover tables created later, so the "ALL" sentinel needs no
// default-privilege rule, and there is no extension mechanism: extension
// entries are recorded as skips.
type MySQLProvider struct {
	cfg    *Config
	log    *logging.Logger
	report *Reporter
	admin  *sql.DB

	open func(dsn string) (*sql.DB, error)
}

// NewMySQL creates a MySQL provider for the given desired state.
func NewMySQL(cfg *Config, logger *logging.Logger) *MySQLProvider {
	return &MySQLProvider{
		cfg:    cfg,
		log:    logger,
		report: NewReporter(),
		open: func(dsn string) (*sql.DB, error) {
			return sql.Open("mysql", dsn)
		},
	}
}

// Report returns the change log for the current run.
func (p *MySQLProvider) Report() *Reporter {
	return p.report
}

func (p *MySQLProvider) dsn() string {
	prov := p.cfg.Provider
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/?parseTime=true", prov.Username, prov.Password, prov.Host, prov.Port)
	if prov.Cert != "" {
		dsn += "&tls=" + mysqlTLSKey
	}
	return dsn
}

// registerTLS installs a verifying TLS configuration from the configured CA
// certificate. It fails closed: a bad certificate aborts the connection.
func (p *MySQLProvider) registerTLS() error {
	pem, err := os.ReadFile(p.cfg.Provider.Cert)
	if err != nil {
		return fmt.Errorf("read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return fmt.Errorf("no certificates found in %s", p.cfg.Provider.Cert)
	}
	return mysql.RegisterTLSConfig(mysqlTLSKey, &tls.Config{
		RootCAs:    pool,
		ServerName: p.cfg.Provider.Host,
	})
}

// Connect establishes the administrative connection (no default database).
func (p *MySQLProvider) Connect(ctx context.Context) error {
	prov := p.cfg.Provider

	if prov.Cert != "" {
		if err := p.registerTLS(); err != nil {
			return cuerrors.ConnectionError{Host: prov.Host, Port: prov.Port, Err: err}
		}
	}

	db, err := p.open(p.dsn())
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
	p.log.Info("Connected to MySQL at %s:%d", prov.Host, prov.Port)
	return nil
}

// Disconnect releases the administrative connection.
func (p *MySQLProvider) Disconnect() error {
	if p.admin == nil {
		return nil
	}
	err := p.admin.Close()
	p.admin = nil
	p.log.Debug("Disconnected from MySQL")
	return err
}

// ReconcileDatabase converges database existence. MySQL has no per-database
// owner, so an existing database is always a skip.
func (p *MySQLProvider) ReconcileDatabase(ctx context.Context, db DatabaseConfig) error {
	var one int
	err := p.admin.QueryRowContext(ctx,
		"SELECT 1 FROM information_schema.schemata WHERE schema_name = ?", db.Name).Scan(&one)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := p.admin.ExecContext(ctx, "CREATE DATABASE "+mysqlQuoteIdent(db.Name)); err != nil {
			return fmt.Errorf("create database %q: %w", db.Name, err)
		}
		p.report.Record(OpCreate, ResourceDatabase, db.Name, nil)
		p.log.Info("Created database %q", db.Name)

	case err != nil:
		return fmt.Errorf("probe database %q: %w", db.Name, err)

	default:
		p.report.Record(OpSkip, ResourceDatabase, db.Name, nil)
		p.log.Debug("Database %q already exists", db.Name)
	}
	return nil
}

// ReconcileExtensions records skips: MySQL has no extension mechanism.
func (p *MySQLProvider) ReconcileExtensions(ctx context.Context, dbName string, exts []ExtensionConfig) error {
	for _, ext := range exts {
		p.report.Record(OpSkip, ResourceExtension, dbName+"/"+ext.Name, map[string]interface{}{
			"reason": "extensions are not supported by this engine",
		})
		p.log.Warn("Extension %q requested for %q, but MySQL has no extensions; skipping", ext.Name, dbName)
	}
	return nil
}

// ReconcileUser converges one login. Passwords are declared, not diffed.
func (p *MySQLProvider) ReconcileUser(ctx context.Context, user UserConfig) error {
	var one int
	err := p.admin.QueryRowContext(ctx,
		"SELECT 1 FROM mysql.user WHERE user = ? AND host = '%'", user.Name).Scan(&one)

	account := mysqlAccount(user.Name)
	password := mysqlQuoteLiteral(user.Password)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := p.admin.ExecContext(ctx, fmt.Sprintf("CREATE USER %s IDENTIFIED BY %s", account, password)); err != nil {
			return fmt.Errorf("create user %q: %w", user.Name, err)
		}
		p.report.Record(OpCreate, ResourceUser, user.Name, nil)
		p.log.Info("Created user %q", user.Name)

	case err != nil:
		return fmt.Errorf("probe user %q: %w", user.Name, err)

	default:
		if _, err := p.admin.ExecContext(ctx, fmt.Sprintf("ALTER USER %s IDENTIFIED BY %s", account, password)); err != nil {
			return fmt.Errorf("alter user %q: %w", user.Name, err)
		}
		p.report.Record(OpUpdate, ResourceUser, user.Name, map[string]interface{}{"password": "reasserted"})
		p.log.Debug("Re-asserted password for user %q", user.Name)
	}
	return nil
}

// ReconcilePrivilege applies one grant entry. A schema in MySQL is the
// database itself, so schema-level settings from the entry are ignored and
// grants target db.* or db.table.
func (p *MySQLProvider) ReconcilePrivilege(ctx context.Context, userName string, priv PrivilegeConfig) error {
	account := mysqlAccount(userName)
	database := mysqlQuoteIdent(priv.Database)

	exec := func(format string, args ...interface{}) error {
		_, err := p.admin.ExecContext(ctx, fmt.Sprintf(format, args...))
		return err
	}

	if err := exec("GRANT USAGE ON *.* TO %s", account); err != nil {
		return fmt.Errorf("grant usage to %q: %w", userName, err)
	}
	if priv.ReadWrite {
		if err := exec("GRANT CREATE ON %s.* TO %s", database, account); err != nil {
			return fmt.Errorf("grant create on %q: %w", priv.Database, err)
		}
	}

	detail := map[string]interface{}{
		"access": priv.Access(),
		"tables": 0,
	}

	if set := tablePrivileges(priv); set != "" {
		if priv.AllTables() {
			// db.* grants apply to future tables as well, so this needs no
			// separate default-privilege rule.
			if err := exec("GRANT %s ON %s.* TO %s", set, database, account); err != nil {
				return fmt.Errorf("grant on %q.*: %w", priv.Database, err)
			}
			detail["tables"] = AllTables
		} else {
			for _, table := range priv.Tables {
				if err := exec("GRANT %s ON %s.%s TO %s", set, database, mysqlQuoteIdent(table), account); err != nil {
					return fmt.Errorf("grant on table %q.%q: %w", priv.Database, table, err)
				}
			}
			detail["tables"] = len(priv.Tables)
		}
	}

	p.report.Record(OpCreate, ResourcePrivilege, privilegeName(userName, priv), detail)
	p.log.Info("Granted %s access on %s to %q", priv.Access(), priv.Database, userName)
	return nil
}

// Execute runs the four reconciliation phases in order.
func (p *MySQLProvider) Execute(ctx context.Context) error {
	p.log.Info("Starting MySQL reconciliation")
	if err := runPhases(ctx, p, p.cfg, p.log); err != nil {
		return err
	}
	p.log.Info("MySQL reconciliation complete: %s", p.report.Summary())
	return nil
}

// mysqlQuoteIdent escapes an identifier with backticks.
func mysqlQuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// mysqlQuoteLiteral escapes a string literal for statements the server
// refuses to prepare (account DDL).
func mysqlQuoteLiteral(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `'`, `\'`)
	return "'" + value + "'"
}

// mysqlAccount renders a 'user'@'%' account reference.
func mysqlAccount(name string) string {
	return mysqlQuoteLiteral(name) + "@'%'"
}
