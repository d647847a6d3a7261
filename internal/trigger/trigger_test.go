package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/internal/webhook"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/router"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/session"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp/whatsapptest"
)

type recordingDeliverer struct {
	mu     sync.Mutex
	events []webhook.Event
}

func (d *recordingDeliverer) Deliver(ctx context.Context, cfg webhook.Config, evt webhook.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
	return nil
}

func (d *recordingDeliverer) ValidateURL(rawURL string) error {
	if strings.Contains(rawURL, "127.0.0.1") {
		return webhook.ErrInvalidURL
	}
	return nil
}

func (d *recordingDeliverer) Events() []webhook.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]webhook.Event(nil), d.events...)
}

type fixture struct {
	app       *fiber.App
	registry  *Registry
	deliverer *recordingDeliverer
	client    *whatsapptest.Client
	factory   *whatsapptest.Factory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{deliverer: &recordingDeliverer{}, client: whatsapptest.NewClient()}
	f.client.Contacts = []whatsapp.Contact{{ID: "79123456789@s.whatsapp.net", Name: "Alice", Number: "79123456789"}}
	f.factory = &whatsapptest.Factory{New: func() *whatsapptest.Client { return f.client }}
	f.registry = NewRegistry(session.NewManager(f.factory.Build), f.deliverer)
	t.Cleanup(f.registry.Shutdown)

	ctl := &Controller{Registry: f.registry}
	f.app = fiber.New(fiber.Config{ErrorHandler: router.HttpErrorHandler})
	f.app.Post("/triggers", ctl.Create)
	f.app.Get("/triggers", ctl.List)
	f.app.Get("/triggers/:id", ctl.Get)
	f.app.Get("/triggers/:id/events", ctl.Events)
	f.app.Post("/triggers/:id/manual", ctl.Manual)
	f.app.Delete("/triggers/:id", ctl.Delete)
	return f
}

type envelope struct {
	Status bool            `json:"status"`
	Kind   string          `json:"kind"`
	Data   json.RawMessage `json:"data"`
}

func (f *fixture) do(t *testing.T, method string, path string, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := f.app.Test(req, 5000)
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (f *fixture) create(t *testing.T, body string) string {
	t.Helper()
	code, env := f.do(t, http.MethodPost, "/triggers", body)
	require.Equal(t, http.StatusCreated, code)

	var trig struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &trig))
	require.NotEmpty(t, trig.ID)
	return trig.ID
}

type retained struct {
	Sequence uint64                 `json:"sequence"`
	Record   map[string]interface{} `json:"record"`
}

func (f *fixture) events(t *testing.T, id string, after int) []retained {
	t.Helper()
	code, env := f.do(t, http.MethodGet, "/triggers/"+id+"/events?after="+strconv.Itoa(after), "")
	require.Equal(t, http.StatusOK, code)
	var data struct {
		Events []retained `json:"events"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.Events
}

func TestTriggerLifecycle(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, `{
		"credential": {"headless": true},
		"triggerType": "messageWithKeyword",
		"keyword": "Hello",
		"webhook": {"url": "https://hooks.example.com/wa", "secret": "s"}
	}`)

	// connected notice
	require.Eventually(t, func() bool { return len(f.events(t, id, 0)) == 1 }, 2*time.Second, 10*time.Millisecond)

	f.client.Emit(whatsapp.Event{Kind: whatsapp.EventMessage, Message: &whatsapp.Message{
		ID: "A", Body: "goodbye", SenderID: "79123456789@s.whatsapp.net", ChatID: "79123456789@s.whatsapp.net",
	}})
	f.client.Emit(whatsapp.Event{Kind: whatsapp.EventMessage, Message: &whatsapp.Message{
		ID: "B", Body: "hello world", SenderID: "79123456789@s.whatsapp.net", ChatID: "79123456789@s.whatsapp.net",
	}})
	require.Eventually(t, func() bool { return len(f.events(t, id, 0)) == 2 }, 2*time.Second, 10*time.Millisecond)

	later := f.events(t, id, 1)
	require.Len(t, later, 1)
	assert.EqualValues(t, 2, later[0].Sequence)
	assert.Equal(t, "B", later[0].Record["messageId"])

	code, env := f.do(t, http.MethodGet, "/triggers/"+id, "")
	require.Equal(t, http.StatusOK, code)
	var status struct {
		State   string `json:"state"`
		Emitted int    `json:"emitted"`
		Webhook string `json:"webhook"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "listening", status.State)
	assert.Equal(t, 2, status.Emitted)
	assert.Equal(t, "https://hooks.example.com/wa", status.Webhook)

	code, _ = f.do(t, http.MethodPost, "/triggers/"+id+"/manual", "")
	require.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, http.MethodDelete, "/triggers/"+id, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, f.client.DestroyCount())

	delivered := f.deliverer.Events()
	require.Len(t, delivered, 3)
	assert.Equal(t, webhook.EventTriggerStatus, delivered[0].EventType)
	assert.Equal(t, webhook.EventTriggerMessage, delivered[1].EventType)
	assert.Equal(t, webhook.EventTriggerManual, delivered[2].EventType)
	for i, evt := range delivered {
		assert.EqualValues(t, i+1, evt.Sequence)
		assert.Equal(t, id, evt.TriggerID)
	}

	code, _ = f.do(t, http.MethodGet, "/triggers/"+id, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTriggerRejectsBadRequests(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, http.MethodPost, "/triggers", `{"credential": {}, "triggerType": "reaction"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/triggers", `{"credential": {}, "triggerType": "newMessage", "webhook": {"url": "nope"}}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/triggers", `{"credential": {}, "triggerType": "newMessage", "webhook": {"url": "http://127.0.0.1/x"}}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodGet, "/triggers/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodGet, "/triggers/0b6f1d1e-8d5e-4c1b-9a55-4f8f4b7f2f11", "")
	assert.Equal(t, http.StatusNotFound, code)

	assert.Empty(t, f.factory.Options())
}

func TestTriggerActivationFailure(t *testing.T) {
	f := newFixture(t)
	f.client.ConnectErr = errors.New("stream error")

	code, env := f.do(t, http.MethodPost, "/triggers", `{"credential": {}, "triggerType": "newMessage"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "AuthenticationError", env.Kind)
	assert.Empty(t, f.registry.List())
}

func TestTriggerAuthFailureKeepsStoppedActivation(t *testing.T) {
	f := newFixture(t)
	f.client.AutoReady = false
	id := f.create(t, `{"credential": {}, "triggerType": "newMessage"}`)

	f.client.Emit(whatsapp.Event{Kind: whatsapp.EventAuthFailed, Err: errors.New("logged out")})

	require.Eventually(t, func() bool {
		a, err := f.registry.Get(id)
		return err == nil && a.Subscription().State().String() == "stopped"
	}, 2*time.Second, 10*time.Millisecond)

	code, env := f.do(t, http.MethodGet, "/triggers/"+id, "")
	require.Equal(t, http.StatusOK, code)
	var status struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Contains(t, status.Error, "logged out")

	code, _ = f.do(t, http.MethodPost, "/triggers/"+id+"/manual", "")
	assert.Equal(t, http.StatusConflict, code)

	listening, stopped := f.registry.HealthCheck()
	assert.Equal(t, 0, listening)
	assert.Equal(t, 1, stopped)
}

func TestRetentionDropsOldest(t *testing.T) {
	a := &Activation{retention: 2}
	for i := 0; i < 5; i++ {
		a.retain(nil)
	}
	kept := a.Since(0)
	require.Len(t, kept, 2)
	assert.EqualValues(t, 4, kept[0].Sequence)
	assert.EqualValues(t, 5, kept[1].Sequence)
	assert.EqualValues(t, 5, a.Emitted())
}
