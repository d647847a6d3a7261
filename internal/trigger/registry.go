package trigger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/internal/webhook"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/emitter"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/env"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/log"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/normalize"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/session"
)

var ErrNotFound = errors.New("trigger not found")

const defaultRetention = 100

// Deliverer forwards records to a webhook sink.
type Deliverer interface {
	Deliver(ctx context.Context, cfg webhook.Config, evt webhook.Event) error
	ValidateURL(rawURL string) error
}

// Retained is one emitted record with its per-trigger sequence number.
type Retained struct {
	Sequence  uint64           `json:"sequence"`
	EmittedAt time.Time        `json:"emittedAt"`
	Record    normalize.Record `json:"record"`
}

// Activation is a running trigger plus the records it emitted recently.
type Activation struct {
	sub       *emitter.Subscription
	hook      *webhook.Config
	createdAt time.Time
	log       *logrus.Entry

	mu        sync.RWMutex
	seq       uint64
	retained  []Retained
	retention int

	forwarded chan struct{}
}

func (a *Activation) ID() string                          { return a.sub.ID() }
func (a *Activation) Subscription() *emitter.Subscription { return a.sub }
func (a *Activation) CreatedAt() time.Time                { return a.createdAt }

func (a *Activation) Webhook() *webhook.Config {
	return a.hook
}

// Emitted returns how many records the trigger produced so far.
func (a *Activation) Emitted() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.seq
}

// Since returns the retained records with a sequence number above after.
func (a *Activation) Since(after uint64) []Retained {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Retained, 0, len(a.retained))
	for _, r := range a.retained {
		if r.Sequence > after {
			out = append(out, r)
		}
	}
	return out
}

func (a *Activation) retain(rec normalize.Record) Retained {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	r := Retained{Sequence: a.seq, EmittedAt: time.Now().UTC(), Record: rec}
	a.retained = append(a.retained, r)
	if over := len(a.retained) - a.retention; over > 0 {
		a.retained = append(a.retained[:0:0], a.retained[over:]...)
	}
	return r
}

// forward drains the subscription. Webhook delivery happens inline so the
// sink sees records in emission order; a slow sink slows the trigger down.
func (a *Activation) forward(ctx context.Context, deliverer Deliverer) {
	defer close(a.forwarded)
	for rec := range a.sub.Events() {
		r := a.retain(rec)
		if a.hook == nil || deliverer == nil {
			continue
		}
		evt := webhook.Event{
			EventType: webhook.EventTypeOf(rec),
			TriggerID: a.ID(),
			Sequence:  r.Sequence,
			Timestamp: r.EmittedAt,
			Data:      rec,
		}
		if err := deliverer.Deliver(ctx, *a.hook, evt); err != nil {
			a.log.WithError(err).WithField("sequence", r.Sequence).Warn("Webhook delivery failed")
		}
	}
}

// Registry owns every live activation of this process.
type Registry struct {
	sessions  emitter.SessionFactory
	deliverer Deliverer
	retention int

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	activations map[string]*Activation
}

func NewRegistry(sessions emitter.SessionFactory, deliverer Deliverer) *Registry {
	retention := env.GetEnvIntOrDefault("TRIGGER_EVENT_RETENTION", defaultRetention)
	if retention <= 0 {
		retention = defaultRetention
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		sessions:    sessions,
		deliverer:   deliverer,
		retention:   retention,
		ctx:         ctx,
		cancel:      cancel,
		activations: make(map[string]*Activation),
	}
}

// Activate registers a new trigger and starts it. On failure nothing stays registered.
func (r *Registry) Activate(ctx context.Context, cfg emitter.TriggerConfig, cred session.Credential, hook *webhook.Config) (*Activation, error) {
	id := uuid.NewString()
	a := &Activation{
		sub:       emitter.New(id, cfg, cred, r.sessions),
		hook:      hook,
		createdAt: time.Now().UTC(),
		log:       log.Trigger(id),
		retention: r.retention,
		forwarded: make(chan struct{}),
	}

	r.mu.Lock()
	r.activations[id] = a
	r.mu.Unlock()

	go a.forward(r.ctx, r.deliverer)

	if err := a.sub.Start(ctx); err != nil {
		r.remove(id)
		_ = a.sub.Stop()
		<-a.forwarded
		return nil, err
	}
	return a, nil
}

func (r *Registry) Get(id string) (*Activation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.activations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

// List returns the activations oldest first.
func (r *Registry) List() []*Activation {
	r.mu.RLock()
	out := make([]*Activation, 0, len(r.activations))
	for _, a := range r.activations {
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].createdAt.Equal(out[j].createdAt) {
			return out[i].ID() < out[j].ID()
		}
		return out[i].createdAt.Before(out[j].createdAt)
	})
	return out
}

// Deactivate stops the trigger, waits for its last records to be forwarded and
// forgets it.
func (r *Registry) Deactivate(id string) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	r.remove(id)
	err = a.sub.Stop()
	<-a.forwarded
	return err
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.activations, id)
	r.mu.Unlock()
}

// HealthCheck logs every activation's state and reports how many are still
// listening. Stopped activations stay visible until deleted.
func (r *Registry) HealthCheck() (listening int, stopped int) {
	for _, a := range r.List() {
		state := a.sub.State()
		entry := a.log.WithField("state", state.String()).WithField("emitted", a.Emitted())
		switch state {
		case emitter.StateListening:
			listening++
			entry.Debug("Trigger healthy")
		case emitter.StateStopped:
			stopped++
			if err := a.sub.Err(); err != nil {
				entry = entry.WithError(err)
			}
			entry.Warn("Trigger stopped")
		default:
			entry.Info("Trigger not listening yet")
		}
	}
	return listening, stopped
}

// Shutdown stops every activation and aborts pending webhook retries.
func (r *Registry) Shutdown() {
	r.cancel()
	for _, a := range r.List() {
		if err := r.Deactivate(a.ID()); err != nil && !errors.Is(err, ErrNotFound) {
			log.SysErr("trigger-shutdown", err)
		}
	}
}
