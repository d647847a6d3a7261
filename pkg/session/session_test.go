package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/log"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/normalize"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp/whatsapptest"
)

const validBlob = `{"driver":"sqlite3","dsn":"file:wa.db?_foreign_keys=on","jid":"79123456789.0:12@s.whatsapp.net"}`

func nextUpdate(t *testing.T, s *Session) Update {
	t.Helper()
	select {
	case u, ok := <-s.Updates():
		require.True(t, ok, "updates closed")
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session update")
	}
	return Update{}
}

func TestCreateRestoresSession(t *testing.T) {
	factory := &whatsapptest.Factory{}
	m := NewManager(factory.Build)

	s, err := m.Create(context.Background(), Credential{SessionData: validBlob, Headless: true, ProxyServer: "socks5://proxy:1080"})
	require.NoError(t, err)
	require.NoError(t, s.AwaitReady(context.Background(), time.Second))
	assert.Equal(t, StateReady, s.State())
	assert.NoError(t, s.ConfigErr())

	opts := factory.Options()
	require.Len(t, opts, 1)
	require.NotNil(t, opts[0].Session)
	assert.Equal(t, "sqlite3", opts[0].Session.Driver)
	assert.Equal(t, "79123456789.0:12@s.whatsapp.net", opts[0].Session.JID)
	assert.Equal(t, "socks5://proxy:1080", opts[0].Proxy)
	assert.True(t, opts[0].Headless)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, factory.Clients()[0].DestroyCount())
	assert.Equal(t, StateDestroyed, s.State())
}

func TestCreateWithUnreadableBlobFallsBack(t *testing.T) {
	factory := &whatsapptest.Factory{}
	m := NewManager(factory.Build)

	s, err := m.Create(context.Background(), Credential{SessionData: "{not json"})
	require.NoError(t, err)
	defer s.Close()

	assert.ErrorIs(t, s.ConfigErr(), whatsapp.ErrConfiguration)
	assert.Nil(t, factory.Options()[0].Session)
	assert.NoError(t, s.AwaitReady(context.Background(), time.Second))
}

func TestCreateFactoryErrorIsConfiguration(t *testing.T) {
	factory := &whatsapptest.Factory{Err: errors.New("invalid proxy url")}
	_, err := NewManager(factory.Build).Create(context.Background(), Credential{ProxyServer: "::bad"})
	assert.ErrorIs(t, err, whatsapp.ErrConfiguration)
}

func TestCreateConnectErrorReleasesClient(t *testing.T) {
	client := whatsapptest.NewClient()
	client.ConnectErr = errors.New("dial failed")
	factory := &whatsapptest.Factory{New: func() *whatsapptest.Client { return client }}

	_, err := NewManager(factory.Build).Create(context.Background(), Credential{})
	assert.ErrorIs(t, err, whatsapp.ErrAuthentication)
	assert.Equal(t, 1, client.DestroyCount())
}

func TestAwaitReadyTimeout(t *testing.T) {
	client := whatsapptest.NewClient()
	client.AutoReady = false
	factory := &whatsapptest.Factory{New: func() *whatsapptest.Client { return client }}

	s, err := NewManager(factory.Build).Create(context.Background(), Credential{})
	require.NoError(t, err)
	defer s.Close()

	err = s.AwaitReady(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, whatsapp.ErrAuthentication)
	assert.Equal(t, StateConnecting, s.State())
}

func TestAwaitReadyHonoursContext(t *testing.T) {
	client := whatsapptest.NewClient()
	client.AutoReady = false
	factory := &whatsapptest.Factory{New: func() *whatsapptest.Client { return client }}

	s, err := NewManager(factory.Build).Create(context.Background(), Credential{})
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.AwaitReady(ctx, 0), context.Canceled)
}

func TestPairingPublishesNotices(t *testing.T) {
	client := whatsapptest.NewClient()
	client.AutoReady = false
	factory := &whatsapptest.Factory{New: func() *whatsapptest.Client { return client }}

	var (
		mu    sync.Mutex
		codes []string
	)
	notifier := PairingNotifierFunc(func(owner string, code string) {
		mu.Lock()
		codes = append(codes, owner+"|"+code)
		mu.Unlock()
	})

	m := NewManager(factory.Build, WithNotifier(notifier))
	s, err := m.Create(context.Background(), Credential{}, WithOwner("trigger-1"), WithUpdates())
	require.NoError(t, err)
	defer s.Close()

	client.Emit(whatsapp.Event{Kind: whatsapp.EventQR, QRCode: "2@ref,key,adv"})
	u := nextUpdate(t, s)
	assert.Equal(t, UpdateStatus, u.Kind)
	assert.False(t, u.Status.Success)
	assert.Equal(t, normalize.MessageQRRequired, u.Status.Message)
	assert.True(t, strings.HasPrefix(u.Status.QRCode, "data:image/png;base64,"))
	assert.Equal(t, StatePairing, s.State())

	client.Emit(whatsapp.Event{Kind: whatsapp.EventReady, Session: &whatsapp.SessionData{Driver: "sqlite3", DSN: "file:wa.db", JID: "1.0:2@s.whatsapp.net"}})
	u = nextUpdate(t, s)
	assert.Equal(t, UpdateReady, u.Kind)
	assert.Equal(t, normalize.Connected(), u.Status)

	u = nextUpdate(t, s)
	assert.Equal(t, UpdateStatus, u.Kind)
	assert.Equal(t, normalize.MessageSessionReady, u.Status.Message)
	assert.JSONEq(t, `{"driver":"sqlite3","dsn":"file:wa.db","jid":"1.0:2@s.whatsapp.net"}`, u.Status.SessionData)

	require.NoError(t, s.AwaitReady(context.Background(), 0))

	mu.Lock()
	assert.Equal(t, []string{"trigger-1|2@ref,key,adv"}, codes)
	mu.Unlock()
}

func TestRestoredSessionDoesNotPublishBlob(t *testing.T) {
	client := whatsapptest.NewClient()
	client.Session = &whatsapp.SessionData{Driver: "sqlite3"}
	factory := &whatsapptest.Factory{New: func() *whatsapptest.Client { return client }}

	s, err := NewManager(factory.Build).Create(context.Background(), Credential{SessionData: validBlob}, WithUpdates())
	require.NoError(t, err)

	u := nextUpdate(t, s)
	assert.Equal(t, normalize.Connected(), u.Status)

	client.Emit(whatsapp.Event{Kind: whatsapp.EventMessage, Message: &whatsapp.Message{ID: "A"}})
	u = nextUpdate(t, s)
	assert.Equal(t, UpdateMessage, u.Kind)
	assert.Equal(t, "A", u.Message.ID)

	require.NoError(t, s.Close())
	_, open := <-s.Updates()
	assert.False(t, open)
}

func TestAuthFailure(t *testing.T) {
	client := whatsapptest.NewClient()
	client.AutoReady = false
	factory := &whatsapptest.Factory{New: func() *whatsapptest.Client { return client }}

	s, err := NewManager(factory.Build).Create(context.Background(), Credential{}, WithUpdates())
	require.NoError(t, err)
	defer s.Close()

	client.Emit(whatsapp.Event{Kind: whatsapp.EventAuthFailed, Err: errors.New("qr pairing timed out")})
	u := nextUpdate(t, s)
	assert.Equal(t, UpdateAuthFailed, u.Kind)
	assert.False(t, u.Status.Success)
	assert.ErrorIs(t, u.Err, whatsapp.ErrAuthentication)

	err = s.AwaitReady(context.Background(), 0)
	assert.ErrorIs(t, err, whatsapp.ErrAuthentication)
	assert.Equal(t, StateAuthFailed, s.State())

	// a late ready does not revive the session
	client.Emit(whatsapp.Event{Kind: whatsapp.EventReady})
	assert.Never(t, func() bool { return s.State() == StateReady }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestAwaitReadyAfterClose(t *testing.T) {
	client := whatsapptest.NewClient()
	client.AutoReady = false
	factory := &whatsapptest.Factory{New: func() *whatsapptest.Client { return client }}

	s, err := NewManager(factory.Build).Create(context.Background(), Credential{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.AwaitReady(context.Background(), 0), ErrSessionClosed)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDefaultNotifierLogsPairingCodeWhenHeadless(t *testing.T) {
	out := &lockedBuffer{}
	log.SetOutput(out)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	client := whatsapptest.NewClient()
	client.AutoReady = false
	factory := &whatsapptest.Factory{New: func() *whatsapptest.Client { return client }}

	s, err := NewManager(factory.Build).Create(context.Background(), Credential{Headless: true}, WithOwner("batch-1"))
	require.NoError(t, err)
	defer s.Close()

	client.Emit(whatsapp.Event{Kind: whatsapp.EventQR, QRCode: "2@PAIRINGCODE,key,adv"})

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "2@PAIRINGCODE,key,adv")
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), "data:image/png;base64,")
	assert.Equal(t, StatePairing, s.State())

	err = s.AwaitReady(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, whatsapp.ErrAuthentication)
}
