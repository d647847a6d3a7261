package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"go.mau.fi/whatsmeow/store/sqlstore"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/env"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/log"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"

	defaultDatastoreDSN = "file:whatsapp.db?_foreign_keys=on"
)

// NormalizeDatastoreDriver maps the accepted driver aliases to a registered database/sql driver.
func NormalizeDatastoreDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgresql", "postgres", "pgx":
		return DriverPostgres
	case "", "sqlite", "sqlite3":
		return DriverSQLite
	default:
		return strings.ToLower(strings.TrimSpace(driver))
	}
}

// NormalizeDatastoreDSN adds the connection options whatsmeow needs for the given driver.
func NormalizeDatastoreDSN(driver string, dsn string) string {
	switch driver {
	case DriverPostgres:
		dsn = appendDSNParam(dsn, "prefer_simple_protocol", "true")
		dsn = appendDSNParam(dsn, "statement_cache_capacity", "0")
		dsn = appendDSNParam(dsn, "default_query_exec_mode", "simple_protocol")
	case DriverSQLite:
		if strings.TrimSpace(dsn) == "" {
			return defaultDatastoreDSN
		}
		dsn = appendDSNParam(dsn, "_foreign_keys", "on")
	}
	return dsn
}

func appendDSNParam(current string, key string, value string) string {
	if strings.Contains(current, key+"=") {
		return current
	}
	separator := "?"
	if strings.Contains(current, "?") {
		if strings.HasSuffix(current, "?") || strings.HasSuffix(current, "&") {
			separator = ""
		} else {
			separator = "&"
		}
	}
	return current + separator + key + "=" + value
}

// DefaultDatastore returns where fresh pairings are stored, read from
// WHATSAPP_DATASTORE_TYPE and WHATSAPP_DATASTORE_URI.
func DefaultDatastore() SessionData {
	driver := NormalizeDatastoreDriver(env.GetEnvStringOrDefault("WHATSAPP_DATASTORE_TYPE", DriverSQLite))
	dsn := env.GetEnvStringOrDefault("WHATSAPP_DATASTORE_URI", "")
	return SessionData{
		Driver: driver,
		DSN:    NormalizeDatastoreDSN(driver, dsn),
	}
}

// OpenDB opens a pooled database handle for driver and dsn and verifies it is reachable.
func OpenDB(ctx context.Context, driver string, dsn string) (*sql.DB, error) {
	driver = NormalizeDatastoreDriver(driver)
	db, err := sql.Open(driver, NormalizeDatastoreDSN(driver, dsn))
	if err != nil {
		return nil, err
	}
	if driver == DriverPostgres {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(10 * time.Minute)
		db.SetConnMaxIdleTime(3 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// openContainer opens and upgrades the whatsmeow device store a session lives in.
func openContainer(ctx context.Context, data SessionData) (*sqlstore.Container, error) {
	if data.Driver != DriverPostgres && data.Driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported datastore driver %q", data.Driver)
	}

	log.Print(nil).WithField("driver", data.Driver).Debug("Opening WhatsApp datastore")

	container, err := sqlstore.New(ctx, data.Driver, data.DSN, log.WALogger("Database"))
	if err != nil {
		return nil, fmt.Errorf("open datastore: %w", err)
	}
	return container, nil
}
