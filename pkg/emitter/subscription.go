package emitter

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/log"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/normalize"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/session"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp"
)

var ErrStopped = errors.New("subscription is stopped")

type State int

const (
	StateCreated State = iota
	StateAuthenticating
	StateListening
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAuthenticating:
		return "authenticating"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// SessionFactory creates the session a subscription listens on.
type SessionFactory interface {
	Create(ctx context.Context, cred session.Credential, opts ...session.Option) (*session.Session, error)
}

// Subscription is one trigger activation. A single goroutine evaluates the
// filter, builds the event and emits it, so events leave in arrival order.
type Subscription struct {
	id       string
	cfg      TriggerConfig
	cred     session.Credential
	sessions SessionFactory
	log      *logrus.Entry

	mu      sync.RWMutex
	state   State
	err     error
	session *session.Session

	events   chan normalize.Record
	emitMu   sync.Mutex
	stopping chan struct{}
	pumpDone chan struct{}
	started  bool

	stopOnce sync.Once
	stopErr  error
}

func New(id string, cfg TriggerConfig, cred session.Credential, sessions SessionFactory) *Subscription {
	return &Subscription{
		id:       id,
		cfg:      cfg,
		cred:     cred,
		sessions: sessions,
		log:      log.Trigger(id),
		state:    StateCreated,
		events:   make(chan normalize.Record),
		stopping: make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
}

func (s *Subscription) ID() string { return s.id }

func (s *Subscription) Config() TriggerConfig { return s.cfg }

func (s *Subscription) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns why the subscription stopped on its own, if it did.
func (s *Subscription) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Session returns the underlying session once Start succeeded.
func (s *Subscription) Session() *session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Events yields every emitted record. It is closed after Stop.
func (s *Subscription) Events() <-chan normalize.Record {
	return s.events
}

// Start creates the session and begins listening. Pairing progress and the
// ready notice arrive on Events.
func (s *Subscription) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return whatsapp.ValidationError("start trigger", err)
	}

	s.mu.Lock()
	if s.state != StateCreated {
		s.mu.Unlock()
		return ErrStopped
	}
	s.state = StateAuthenticating
	s.mu.Unlock()

	sess, err := s.sessions.Create(ctx, s.cred, session.WithOwner(s.id), session.WithUpdates())
	if err != nil {
		s.fail(err)
		_ = s.Stop()
		return err
	}

	s.mu.Lock()
	select {
	case <-s.stopping:
		// Stop ran while the session was being created.
		s.mu.Unlock()
		_ = sess.Close()
		return ErrStopped
	default:
	}
	s.session = sess
	s.started = true
	s.mu.Unlock()

	go s.pump(sess)
	s.log.Info("Trigger started")
	return nil
}

func (s *Subscription) pump(sess *session.Session) {
	defer close(s.pumpDone)

	ctx := context.Background()
	updates := sess.Updates()
	for {
		select {
		case <-s.stopping:
			return
		case u, ok := <-updates:
			if !ok {
				go s.Stop()
				return
			}
			if !s.handle(ctx, sess, u) {
				go s.Stop()
				return
			}
		}
	}
}

// handle processes one update and reports whether the pump should keep running.
func (s *Subscription) handle(ctx context.Context, sess *session.Session, u session.Update) bool {
	switch u.Kind {
	case session.UpdateReady:
		s.setState(StateListening)
		_ = s.emit(ctx, u.Status)
	case session.UpdateStatus:
		_ = s.emit(ctx, u.Status)
	case session.UpdateAuthFailed:
		s.fail(u.Err)
		_ = s.emit(ctx, u.Status)
		return false
	case session.UpdateMessage:
		s.handleMessage(ctx, sess.Client(), u.Message)
	}
	return true
}

func (s *Subscription) handleMessage(ctx context.Context, client whatsapp.Client, msg *whatsapp.Message) {
	if msg == nil || !Accept(s.cfg, msg.SenderID, msg.Body) {
		return
	}

	sender, err := client.FetchContact(ctx, msg.SenderID)
	if err != nil {
		s.log.WithError(err).Debug("Sender lookup failed, using bare id")
		sender = whatsapp.Contact{ID: msg.SenderID}
	}
	chat, err := client.FetchChat(ctx, msg.ChatID)
	if err != nil {
		s.log.WithError(err).Debug("Chat lookup failed, using bare id")
		chat = whatsapp.Chat{ID: msg.ChatID, IsGroup: msg.IsGroup}
	}

	var (
		media    *whatsapp.Media
		mediaErr error
	)
	if msg.HasMedia && s.cfg.IncludeMedia {
		media, mediaErr = client.DownloadMedia(ctx, msg)
		if mediaErr != nil {
			s.log.WithError(mediaErr).Warn("Media download failed")
		}
	}

	if err := s.emit(ctx, normalize.Inbound(msg, sender, chat, media, mediaErr)); err != nil {
		s.log.WithField("message_id", msg.ID).Debug("Dropped event after stop")
	}
}

// Manual emits the manual-run record regardless of the connection state.
func (s *Subscription) Manual(ctx context.Context) (normalize.ManualRecord, error) {
	rec := normalize.Manual("")
	if err := s.emit(ctx, rec); err != nil {
		return normalize.ManualRecord{}, err
	}
	return rec, nil
}

// emit hands rec to the reader. Nothing is sent once stopping has begun.
func (s *Subscription) emit(ctx context.Context, rec normalize.Record) error {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	select {
	case <-s.stopping:
		return ErrStopped
	default:
	}

	select {
	case s.events <- rec:
		return nil
	case <-s.stopping:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends the subscription. It waits for an in-flight message to finish,
// closes Events and releases the session once. Safe to call repeatedly and
// from any goroutine.
func (s *Subscription) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopping)

		s.mu.RLock()
		started := s.started
		sess := s.session
		s.mu.RUnlock()
		if started {
			<-s.pumpDone
		}

		s.emitMu.Lock()
		close(s.events)
		s.emitMu.Unlock()

		if sess != nil {
			s.stopErr = sess.Close()
		}
		s.setState(StateStopped)
		s.log.Info("Trigger stopped")
	})
	return s.stopErr
}

func (s *Subscription) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return
	}
	s.state = state
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
