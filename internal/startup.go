package internal

import (
	"context"
	"fmt"
	mathrand "math/rand/v2"
	"time"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/internal/webhook"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/internal/trigger"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/dispatch"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/env"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/log"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/session"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp"
)

// App wires the components shared by routes and routines.
type App struct {
	Credentials session.CredentialStore
	Sessions    *session.Manager
	Runner      *dispatch.Runner
	Triggers    *trigger.Registry
	Versions    *whatsapp.VersionRefresher

	closeCredentials func() error
}

func retryWithBackoff(retries int, baseBackoff time.Duration, maxBackoff time.Duration, fn func() error) error {
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == retries {
			break
		}
		backoff := baseBackoff * time.Duration(1<<(attempt-1))
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		jitter := time.Duration(mathrand.Int64N(int64(500*time.Millisecond) + 1))
		time.Sleep(backoff + jitter)
	}
	return lastErr
}

// checkDatastore makes sure the session datastore answers before any session
// is opened against it.
func checkDatastore(ctx context.Context) error {
	location := whatsapp.DefaultDatastore()
	db, err := whatsapp.OpenDB(ctx, location.Driver, location.DSN)
	if err != nil {
		return err
	}
	return db.Close()
}

func Startup(ctx context.Context) (*App, error) {
	log.Print(nil).Info("Running Startup Tasks")

	retries := env.GetEnvIntOrDefault("WHATSAPP_STARTUP_DATASTORE_RETRIES", 5)
	baseBackoff := env.GetEnvDurationOrDefault("WHATSAPP_STARTUP_DATASTORE_BACKOFF_BASE", 2*time.Second)
	maxBackoff := env.GetEnvDurationOrDefault("WHATSAPP_STARTUP_DATASTORE_BACKOFF_MAX", 30*time.Second)
	if err := retryWithBackoff(retries, baseBackoff, maxBackoff, func() error { return checkDatastore(ctx) }); err != nil {
		return nil, fmt.Errorf("whatsapp datastore unreachable: %w", err)
	}

	credentials, closeCredentials, err := session.NewCredentialStore(ctx)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(whatsapp.NewClient)
	app := &App{
		Credentials: credentials,
		Sessions:    sessions,
		Runner: &dispatch.Runner{
			Sessions:     sessions,
			Dispatcher:   dispatch.New(),
			ReadyTimeout: env.GetEnvDurationOrDefault("WHATSAPP_READY_TIMEOUT", 60*time.Second),
		},
		Triggers:         trigger.NewRegistry(sessions, webhook.NewDeliverer()),
		Versions:         whatsapp.NewVersionRefresher(),
		closeCredentials: closeCredentials,
	}

	if env.GetEnvBoolOrDefault("WHATSAPP_WAVERSION_REFRESH_ON_STARTUP", false) {
		refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_, _, err := app.Versions.Refresh(refreshCtx, true)
		cancel()
		if err != nil {
			log.Print(nil).WithError(err).Warn("WA Web version refresh on startup failed, keeping the built-in version")
		}
	}

	log.Print(nil).
		WithField("ready_timeout", app.Runner.ReadyTimeout.String()).
		WithField("datastore", whatsapp.DefaultDatastore().Driver).
		Info("Startup complete")
	return app, nil
}

// Shutdown stops every trigger and releases the credential store.
func (a *App) Shutdown() {
	a.Triggers.Shutdown()
	if a.closeCredentials != nil {
		if err := a.closeCredentials(); err != nil {
			log.SysErr("credential-store-close", err)
		}
	}
}
