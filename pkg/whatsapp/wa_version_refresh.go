package whatsapp

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"golang.org/x/sync/singleflight"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/env"
)

var ErrWAVersionOutdatedForQR = errors.New("whatsapp client version is outdated for QR pairing")

type VersionStatus struct {
	CurrentVersion store.WAVersionContainer `json:"current_version"`
	LastRefreshed  *time.Time               `json:"last_refreshed,omitempty"`
	LastError      string                   `json:"last_error,omitempty"`
}

// VersionRefresher keeps the WhatsApp Web version new sessions announce up to date.
// Concurrent refreshes share one request.
type VersionRefresher struct {
	MinInterval time.Duration
	HTTPClient  *http.Client
	// Fetch returns the latest version; defaults to whatsmeow.GetLatestVersion.
	Fetch func(ctx context.Context, httpClient *http.Client) (*store.WAVersionContainer, error)

	group singleflight.Group

	mu            sync.RWMutex
	lastRefreshed *time.Time
	lastError     string
}

func NewVersionRefresher() *VersionRefresher {
	return &VersionRefresher{
		MinInterval: env.GetEnvDurationOrDefault("WHATSAPP_WAVERSION_REFRESH_MIN_INTERVAL", 10*time.Minute),
		HTTPClient:  &http.Client{Timeout: 15 * time.Second},
		Fetch:       whatsmeow.GetLatestVersion,
	}
}

func (r *VersionRefresher) Status() VersionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last *time.Time
	if r.lastRefreshed != nil {
		t := *r.lastRefreshed
		last = &t
	}
	return VersionStatus{
		CurrentVersion: store.GetWAVersion(),
		LastRefreshed:  last,
		LastError:      r.lastError,
	}
}

// Refresh fetches and applies the latest version. Unless force is set, calls
// within MinInterval of the previous attempt are skipped; the bool reports
// whether a fetch was attempted.
func (r *VersionRefresher) Refresh(ctx context.Context, force bool) (VersionStatus, bool, error) {
	if !force && r.MinInterval > 0 {
		r.mu.RLock()
		last := r.lastRefreshed
		r.mu.RUnlock()
		if last != nil && time.Since(*last) < r.MinInterval {
			return r.Status(), false, nil
		}
	}

	_, err, _ := r.group.Do("refresh", func() (interface{}, error) {
		latest, err := r.Fetch(ctx, r.HTTPClient)
		if err == nil && latest == nil {
			err = errors.New("latest WhatsApp Web version is nil")
		}
		if err == nil {
			store.SetWAVersion(*latest)
		}
		r.record(err)
		return nil, err
	})
	return r.Status(), true, err
}

func (r *VersionRefresher) record(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.lastRefreshed = &now
	r.lastError = ""
	if err != nil {
		r.lastError = err.Error()
	}
}
