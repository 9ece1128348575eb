package sqlconf

import (
	"context"
	"fmt"

	"github.com/cloudutil/cloudutil/internal/logging"
)

// runPhases drives one reconciliation run against a provider. The phase
// order is mandatory: extensions require an existing database, privileges
// require an existing user and database.
//
// Policy: a connection failure aborts immediately. A failure inside one
// resource is recorded through the reporter's error path and the run
// continues — except that a failed database creation suppresses that
// database's dependent extension and privilege work, since nothing
// downstream of it can succeed. Databases declared with create=false are
// managed elsewhere: no probe or statement may touch them, so their
// extension and privilege entries are suppressed as well.
func runPhases(ctx context.Context, p Provider, cfg *Config, log *logging.Logger) error {
	if err := p.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := p.Disconnect(); err != nil {
			log.Warn("error closing connections: %v", err)
		}
	}()

	rep := p.Report()
	failedDBs := make(map[string]bool)
	unmanaged := make(map[string]bool)
	for _, db := range cfg.Databases {
		if !db.Create {
			unmanaged[db.Name] = true
		}
	}

	log.Info("Reconciling databases")
	for _, db := range cfg.Databases {
		if !db.Create {
			// Never probed, never touched, not recorded as a resource action.
			log.Debug("database %q has create=false, leaving it alone", db.Name)
			continue
		}
		if err := p.ReconcileDatabase(ctx, db); err != nil {
			failedDBs[db.Name] = true
			rep.Fail(ResourceDatabase, db.Name, err)
			log.Error("database %q: %v", db.Name, err)
		}
	}

	log.Info("Reconciling extensions")
	for _, db := range cfg.Databases {
		if len(db.Extensions) == 0 || !db.Create {
			continue
		}
		if failedDBs[db.Name] {
			rep.Fail(ResourceExtension, db.Name,
				fmt.Errorf("database %q could not be reconciled; extensions not attempted", db.Name))
			continue
		}
		if err := p.ReconcileExtensions(ctx, db.Name, db.Extensions); err != nil {
			rep.Fail(ResourceExtension, db.Name, err)
			log.Error("extensions in %q: %v", db.Name, err)
		}
	}

	log.Info("Reconciling users")
	for _, user := range cfg.Users {
		if err := p.ReconcileUser(ctx, user); err != nil {
			rep.Fail(ResourceUser, user.Name, err)
			log.Error("user %q: %v", user.Name, err)
		}
	}

	log.Info("Reconciling privileges")
	for _, user := range cfg.Users {
		for _, priv := range user.Privileges {
			name := privilegeName(user.Name, priv)
			if unmanaged[priv.Database] {
				rep.Record(OpSkip, ResourcePrivilege, name, map[string]interface{}{
					"reason": "database has create=false; grants are managed elsewhere",
				})
				log.Debug("privileges for %q on %q skipped, database has create=false", user.Name, priv.Database)
				continue
			}
			if failedDBs[priv.Database] {
				rep.Fail(ResourcePrivilege, name,
					fmt.Errorf("database %q could not be reconciled; grants not attempted", priv.Database))
				continue
			}
			if err := p.ReconcilePrivilege(ctx, user.Name, priv); err != nil {
				rep.Fail(ResourcePrivilege, name, err)
				log.Error("privileges for %q on %q: %v", user.Name, priv.Database, err)
			}
		}
	}

	return nil
}

// privilegeName is the resource identifier recorded for one privilege entry.
func privilegeName(user string, priv PrivilegeConfig) string {
	return fmt.Sprintf("%s:%s.%s", user, priv.Database, priv.Schema)
}
