package whatsapp

import (
	"context"
	"encoding/base64"
)

// Client is the messaging client a session owns. Implementations must be safe
// for use by one session at a time; they are never shared between sessions.
type Client interface {
	// Connect starts the connection. Progress (qr, ready, failure) is reported on Events.
	Connect(ctx context.Context) error
	// Events yields lifecycle and inbound message events in arrival order.
	Events() <-chan Event

	SendText(ctx context.Context, chatID string, text string) (SendResult, error)
	SendMedia(ctx context.Context, chatID string, media *Media, caption string) (SendResult, error)

	FetchChat(ctx context.Context, id string) (Chat, error)
	ListChats(ctx context.Context) ([]Chat, error)
	FetchContact(ctx context.Context, id string) (Contact, error)
	ListContacts(ctx context.Context) ([]Contact, error)

	ResolveMediaFromURL(ctx context.Context, url string) (*Media, error)
	DownloadMedia(ctx context.Context, msg *Message) (*Media, error)

	// Destroy releases the connection and the session store. Safe to call more than once.
	Destroy() error
}

// Factory builds a client from connect options.
type Factory func(opts Options) (Client, error)

// Options configure a client before it connects.
type Options struct {
	Headless bool
	Proxy    string
	// Session points at a previously paired device; nil starts a fresh pairing.
	Session *SessionData
}

// SessionData locates a paired device inside a whatsmeow sqlstore database.
type SessionData struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
	JID    string `json:"jid,omitempty"`
}

type EventKind int

const (
	EventQR EventKind = iota + 1
	EventReady
	EventMessage
	EventDisconnected
	EventAuthFailed
)

func (k EventKind) String() string {
	switch k {
	case EventQR:
		return "qr"
	case EventReady:
		return "ready"
	case EventMessage:
		return "message"
	case EventDisconnected:
		return "disconnected"
	case EventAuthFailed:
		return "auth_failed"
	}
	return "unknown"
}

// Event is one item of a client's event stream. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind    EventKind
	QRCode  string
	Message *Message
	Session *SessionData
	Err     error
}

type SendResult struct {
	ID        string
	Timestamp int64
}

type Chat struct {
	ID          string
	Name        string
	IsGroup     bool
	Timestamp   int64
	UnreadCount int
}

type Contact struct {
	ID          string
	Name        string
	Number      string
	PushName    string
	IsGroup     bool
	IsMe        bool
	IsMyContact bool
}

// Message is an inbound message. Raw keeps the client-specific payload needed
// to download its media later.
type Message struct {
	ID        string
	Body      string
	Timestamp int64
	SenderID  string
	ChatID    string
	PushName  string
	IsGroup   bool
	HasMedia  bool
	Raw       any
}

type Media struct {
	Mimetype string
	Data     []byte
	Filename string
}

// Base64 returns the media payload the way the host expects binary data.
func (m *Media) Base64() string {
	if m == nil || len(m.Data) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(m.Data)
}
