// Package session turns a stored credential into a connected WhatsApp client
// and owns that client until it is closed.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/log"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/normalize"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp"
)

var ErrSessionClosed = errors.New("session is closed")

type State int

const (
	StateConnecting State = iota
	StatePairing
	StateReady
	StateAuthFailed
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StatePairing:
		return "pairing"
	case StateReady:
		return "ready"
	case StateAuthFailed:
		return "auth_failed"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// PairingNotifier is told about every QR code a session needs scanned.
type PairingNotifier interface {
	NotifyQR(owner string, code string)
}

type PairingNotifierFunc func(owner string, code string)

func (f PairingNotifierFunc) NotifyQR(owner string, code string) { f(owner, code) }

// logNotifier writes the pairing code to the service log. The data URL opens
// as a scannable image in any browser, which is all a headless host offers.
type logNotifier struct{}

func (logNotifier) NotifyQR(owner string, code string) {
	entry := log.Session(owner).WithField("qr_code", code)
	if dataURL, err := whatsapp.QRDataURL(code); err == nil {
		entry = entry.WithField("qr_data_url", dataURL)
	}
	entry.Warn("WhatsApp pairing required, scan the QR code with the phone")
}

type UpdateKind int

const (
	UpdateStatus UpdateKind = iota + 1
	UpdateReady
	UpdateMessage
	UpdateAuthFailed
)

// Update is one item of a session's update stream.
type Update struct {
	Kind    UpdateKind
	Status  normalize.StatusRecord
	Message *whatsapp.Message
	Err     error
}

type Manager struct {
	factory  whatsapp.Factory
	notifier PairingNotifier
}

type ManagerOption func(*Manager)

func WithNotifier(n PairingNotifier) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

func NewManager(factory whatsapp.Factory, opts ...ManagerOption) *Manager {
	m := &Manager{factory: factory, notifier: logNotifier{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type createOptions struct {
	owner   string
	updates bool
}

type Option func(*createOptions)

// WithOwner names the session in logs; a random id is used otherwise.
func WithOwner(owner string) Option {
	return func(o *createOptions) { o.owner = owner }
}

// WithUpdates enables Updates, which carries status notices and inbound messages.
func WithUpdates() Option {
	return func(o *createOptions) { o.updates = true }
}

// Create builds and connects a client for cred. An unreadable session blob is
// not fatal: it is logged, kept as ConfigErr, and the session pairs afresh.
func (m *Manager) Create(ctx context.Context, cred Credential, opts ...Option) (*Session, error) {
	o := createOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.owner == "" {
		o.owner = uuid.NewString()
	}
	logger := log.Session(o.owner)

	var configErr error
	data, err := ParseSessionData(cred.SessionData)
	if err != nil {
		configErr = whatsapp.ConfigurationError("parse session data", err)
		logger.WithError(configErr).Warn("Ignoring unreadable session data, a new pairing will be required")
		data = nil
	}

	client, err := m.factory(whatsapp.Options{
		Headless: cred.Headless,
		Proxy:    cred.ProxyServer,
		Session:  data,
	})
	if err != nil {
		if whatsapp.KindOf(err) == "" {
			err = whatsapp.ConfigurationError("create client", err)
		}
		return nil, err
	}

	s := &Session{
		owner:     o.owner,
		client:    client,
		notifier:  m.notifier,
		configErr: configErr,
		log:       logger,
		state:     StateConnecting,
		readyCh:   make(chan struct{}),
		failedCh:  make(chan struct{}),
		closing:   make(chan struct{}),
		pumpDone:  make(chan struct{}),
	}
	if o.updates {
		s.updates = make(chan Update)
	}

	go s.pump()

	if err := client.Connect(ctx); err != nil {
		_ = s.Close()
		if whatsapp.KindOf(err) == "" {
			err = whatsapp.AuthenticationError("connect", err)
		}
		return nil, err
	}
	return s, nil
}

// Session owns one client. It is never shared between invocations.
type Session struct {
	owner     string
	client    whatsapp.Client
	notifier  PairingNotifier
	configErr error
	log       *logrus.Entry

	mu       sync.RWMutex
	state    State
	err      error
	paired   bool
	readyCh  chan struct{}
	failedCh chan struct{}

	updates  chan Update
	closing  chan struct{}
	pumpDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func (s *Session) Owner() string { return s.owner }

func (s *Session) Client() whatsapp.Client { return s.client }

// ConfigErr returns the problem with the stored session blob, if there was one.
func (s *Session) ConfigErr() error { return s.configErr }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the authentication failure once the session is in StateAuthFailed.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Updates is nil unless the session was created WithUpdates. It is closed once
// the session is closed. Nothing is dropped: a slow reader holds up the session.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// AwaitReady blocks until the session is ready. A zero timeout waits without
// limit; when a positive timeout expires the result is an AuthenticationError.
func (s *Session) AwaitReady(ctx context.Context, timeout time.Duration) error {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-s.readyCh:
		return nil
	case <-s.failedCh:
		if s.State() == StateReady {
			return nil
		}
		return s.Err()
	case <-s.closing:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer:
		return whatsapp.AuthenticationError("await ready", fmt.Errorf("session not ready within %s", timeout))
	}
}

// Close destroys the client exactly once; later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		<-s.pumpDone

		s.mu.Lock()
		s.state = StateDestroyed
		s.mu.Unlock()

		s.closeErr = s.client.Destroy()
		s.log.Debug("Session closed")
	})
	return s.closeErr
}

func (s *Session) pump() {
	defer close(s.pumpDone)
	if s.updates != nil {
		defer close(s.updates)
	}

	events := s.client.Events()
	for {
		select {
		case <-s.closing:
			return
		case evt := <-events:
			s.handle(evt)
		}
	}
}

func (s *Session) handle(evt whatsapp.Event) {
	switch evt.Kind {
	case whatsapp.EventQR:
		if !s.transition(StatePairing) {
			return
		}
		s.mu.Lock()
		s.paired = true
		s.mu.Unlock()

		s.notifier.NotifyQR(s.owner, evt.QRCode)
		qr, err := whatsapp.QRDataURL(evt.QRCode)
		if err != nil {
			s.log.WithError(err).Warn("Failed to render QR code")
		}
		s.publish(Update{Kind: UpdateStatus, Status: normalize.PairingRequired(qr)})

	case whatsapp.EventReady:
		if s.State() == StateReady {
			return
		}
		if !s.transition(StateReady) {
			return
		}
		close(s.readyCh)
		s.log.Info("Session ready")
		s.publish(Update{Kind: UpdateReady, Status: normalize.Connected()})

		s.mu.RLock()
		paired := s.paired
		s.mu.RUnlock()
		if paired && evt.Session != nil {
			s.publish(Update{Kind: UpdateStatus, Status: normalize.SessionReady(EncodeSessionData(evt.Session))})
		}

	case whatsapp.EventAuthFailed:
		err := whatsapp.AuthenticationError("authenticate", evt.Err)
		if err == nil {
			err = whatsapp.AuthenticationError("authenticate", errors.New("authentication failed"))
		}
		s.mu.Lock()
		if s.state == StateAuthFailed || s.state == StateDestroyed {
			s.mu.Unlock()
			return
		}
		s.state = StateAuthFailed
		s.err = err
		s.mu.Unlock()
		close(s.failedCh)

		s.log.WithError(err).Error("Session authentication failed")
		s.publish(Update{Kind: UpdateAuthFailed, Status: normalize.Status(false, err.Error()), Err: err})

	case whatsapp.EventDisconnected:
		if evt.Err != nil {
			s.log.WithError(evt.Err).Warn("Session disconnected")
		} else {
			s.log.Warn("Session disconnected, waiting for reconnect")
		}

	case whatsapp.EventMessage:
		if evt.Message != nil {
			s.publish(Update{Kind: UpdateMessage, Message: evt.Message})
		}
	}
}

// transition moves to next unless the session already ended.
func (s *Session) transition(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAuthFailed || s.state == StateDestroyed {
		return false
	}
	s.state = next
	return true
}

func (s *Session) publish(u Update) {
	if s.updates == nil {
		return
	}
	select {
	case s.updates <- u:
	case <-s.closing:
	}
}
