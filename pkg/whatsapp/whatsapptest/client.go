// Package whatsapptest provides an in-memory whatsapp.Client for tests.
package whatsapptest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp"
)

var ErrNotFound = errors.New("not found")

type SentMessage struct {
	ChatID  string
	Text    string
	Media   *whatsapp.Media
	Caption string
}

// Client records calls and serves canned data. Connect emits a ready event
// unless AutoReady is false, in which case the test drives Emit itself.
type Client struct {
	AutoReady   bool
	ConnectErr  error
	Session     *whatsapp.SessionData
	Chats       []whatsapp.Chat
	Contacts    []whatsapp.Contact
	Media       map[string]*whatsapp.Media
	SendErr     map[string]error
	Download    *whatsapp.Media
	DownloadErr error
	// OnDownload runs inside DownloadMedia before it returns.
	OnDownload func()

	mu        sync.Mutex
	sent      []SentMessage
	calls     []string
	destroyed int
	events    chan whatsapp.Event
}

func NewClient() *Client {
	return &Client{
		AutoReady: true,
		Media:     map[string]*whatsapp.Media{},
		SendErr:   map[string]error{},
		events:    make(chan whatsapp.Event, 64),
	}
}

// Emit queues an event as if the messaging network produced it.
func (c *Client) Emit(evt whatsapp.Event) {
	c.events <- evt
}

func (c *Client) record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *Client) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *Client) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentMessage(nil), c.sent...)
}

func (c *Client) DestroyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func (c *Client) Connect(ctx context.Context) error {
	c.record("Connect")
	if c.ConnectErr != nil {
		return c.ConnectErr
	}
	if c.AutoReady {
		c.Emit(whatsapp.Event{Kind: whatsapp.EventReady, Session: c.Session})
	}
	return nil
}

func (c *Client) Events() <-chan whatsapp.Event {
	return c.events
}

func (c *Client) send(msg SentMessage) (whatsapp.SendResult, error) {
	if err := c.SendErr[msg.ChatID]; err != nil {
		return whatsapp.SendResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	n := len(c.sent)
	return whatsapp.SendResult{ID: fmt.Sprintf("MSG%03d", n), Timestamp: 1700000000 + int64(n)}, nil
}

func (c *Client) SendText(ctx context.Context, chatID string, text string) (whatsapp.SendResult, error) {
	c.record("SendText")
	return c.send(SentMessage{ChatID: chatID, Text: text})
}

func (c *Client) SendMedia(ctx context.Context, chatID string, media *whatsapp.Media, caption string) (whatsapp.SendResult, error) {
	c.record("SendMedia")
	return c.send(SentMessage{ChatID: chatID, Media: media, Caption: caption})
}

func (c *Client) FetchChat(ctx context.Context, id string) (whatsapp.Chat, error) {
	c.record("FetchChat")
	for _, chat := range c.Chats {
		if chat.ID == id {
			return chat, nil
		}
	}
	return whatsapp.Chat{}, fmt.Errorf("chat %s: %w", id, ErrNotFound)
}

func (c *Client) ListChats(ctx context.Context) ([]whatsapp.Chat, error) {
	c.record("ListChats")
	return append([]whatsapp.Chat(nil), c.Chats...), nil
}

func (c *Client) FetchContact(ctx context.Context, id string) (whatsapp.Contact, error) {
	c.record("FetchContact")
	for _, contact := range c.Contacts {
		if contact.ID == id {
			return contact, nil
		}
	}
	return whatsapp.Contact{}, fmt.Errorf("contact %s: %w", id, ErrNotFound)
}

func (c *Client) ListContacts(ctx context.Context) ([]whatsapp.Contact, error) {
	c.record("ListContacts")
	return append([]whatsapp.Contact(nil), c.Contacts...), nil
}

func (c *Client) ResolveMediaFromURL(ctx context.Context, url string) (*whatsapp.Media, error) {
	c.record("ResolveMediaFromURL")
	media, ok := c.Media[url]
	if !ok {
		return nil, whatsapp.MediaFetchError("resolve media", fmt.Errorf("GET %s: %w", url, ErrNotFound))
	}
	return media, nil
}

func (c *Client) DownloadMedia(ctx context.Context, msg *whatsapp.Message) (*whatsapp.Media, error) {
	c.record("DownloadMedia")
	if c.OnDownload != nil {
		c.OnDownload()
	}
	if c.DownloadErr != nil {
		return nil, whatsapp.MediaDownloadError("download media", c.DownloadErr)
	}
	return c.Download, nil
}

func (c *Client) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed++
	return nil
}

// Factory hands out prepared clients and remembers the options each was built with.
type Factory struct {
	// New builds the next client; NewClient is used when nil.
	New func() *Client
	Err error

	mu      sync.Mutex
	clients []*Client
	options []whatsapp.Options
}

func (f *Factory) Build(opts whatsapp.Options) (whatsapp.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.options = append(f.options, opts)
	if f.Err != nil {
		return nil, f.Err
	}
	client := NewClient()
	if f.New != nil {
		client = f.New()
	}
	f.clients = append(f.clients, client)
	return client, nil
}

func (f *Factory) Clients() []*Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Client(nil), f.clients...)
}

func (f *Factory) Options() []whatsapp.Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]whatsapp.Options(nil), f.options...)
}
