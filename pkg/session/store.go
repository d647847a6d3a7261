package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/env"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp"
)

const DefaultCredentialTable = "wa_credentials"

var ErrCredentialNotFound = errors.New("credential not found")

// CredentialStore gives read-only access to stored credentials by name.
type CredentialStore interface {
	Load(ctx context.Context, name string) (Credential, error)
}

// EnvStore serves a single credential from WHATSAPP_SESSION_DATA,
// WHATSAPP_HEADLESS and WHATSAPP_CLIENT_PROXY_URL, whatever name is asked for.
type EnvStore struct{}

func (EnvStore) Load(ctx context.Context, name string) (Credential, error) {
	return Credential{
		SessionData: env.GetEnvStringOrDefault("WHATSAPP_SESSION_DATA", ""),
		Headless:    env.GetEnvBoolOrDefault("WHATSAPP_HEADLESS", true),
		ProxyServer: env.GetEnvStringOrDefault("WHATSAPP_CLIENT_PROXY_URL", ""),
	}, nil
}

// SQLStore reads credentials from a table with columns
// (name, session_data, headless, proxy_server).
type SQLStore struct {
	db    *sql.DB
	query string
}

func NewSQLStore(db *sql.DB, table string) *SQLStore {
	if strings.TrimSpace(table) == "" {
		table = DefaultCredentialTable
	}
	return &SQLStore{
		db: db,
		query: "SELECT session_data, headless, proxy_server FROM " + pq.QuoteIdentifier(table) +
			" WHERE name = $1",
	}
}

func (s *SQLStore) Load(ctx context.Context, name string) (Credential, error) {
	var (
		cred        Credential
		sessionData sql.NullString
		headless    sql.NullBool
		proxy       sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.query, name).Scan(&sessionData, &headless, &proxy)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, fmt.Errorf("%s: %w", name, ErrCredentialNotFound)
	}
	if err != nil {
		return Credential{}, fmt.Errorf("load credential %s: %w", name, err)
	}

	cred.SessionData = sessionData.String
	cred.Headless = !headless.Valid || headless.Bool
	cred.ProxyServer = proxy.String
	return cred, nil
}

// NewCredentialStore picks the store named by WHATSAPP_CREDENTIAL_STORE.
// The sql store shares the WhatsApp datastore connection settings.
func NewCredentialStore(ctx context.Context) (CredentialStore, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(env.GetEnvStringOrDefault("WHATSAPP_CREDENTIAL_STORE", "env")) {
	case "env":
		return EnvStore{}, noop, nil
	case "sql":
		location := whatsapp.DefaultDatastore()
		db, err := whatsapp.OpenDB(ctx, location.Driver, location.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("open credential store: %w", err)
		}
		table := env.GetEnvStringOrDefault("WHATSAPP_CREDENTIAL_TABLE", DefaultCredentialTable)
		return NewSQLStore(db, table), db.Close, nil
	default:
		return nil, noop, errors.New("WHATSAPP_CREDENTIAL_STORE must be env or sql")
	}
}
