// Package dispatch maps (resource, operation) pairs onto client calls.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/normalize"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp"
)

const (
	ResourceMessage = "message"
	ResourceChat    = "chat"
	ResourceContact = "contact"

	OperationSend      = "send"
	OperationSendMedia = "sendMedia"
	OperationGet       = "get"
	OperationGetAll    = "getAll"
)

var ErrUnknownAction = errors.New("unknown action")

type Action struct {
	Resource  string
	Operation string
}

func (a Action) String() string {
	return a.Resource + "." + a.Operation
}

// Params is the per-item parameter set. Only the fields an action needs are read.
type Params struct {
	To        string `json:"to,omitempty"`
	Message   string `json:"message,omitempty"`
	MediaURL  string `json:"mediaUrl,omitempty"`
	Caption   string `json:"caption,omitempty"`
	ChatID    string `json:"chatId,omitempty"`
	ContactID string `json:"contactId,omitempty"`
}

type handler func(ctx context.Context, client whatsapp.Client, p Params) ([]normalize.Record, error)

// Dispatcher holds the closed action table.
type Dispatcher struct {
	handlers map[Action]handler
}

func New() *Dispatcher {
	return &Dispatcher{handlers: map[Action]handler{
		{ResourceMessage, OperationSend}:      sendMessage,
		{ResourceMessage, OperationSendMedia}: sendMedia,
		{ResourceChat, OperationGet}:          getChat,
		{ResourceChat, OperationGetAll}:       getAllChats,
		{ResourceContact, OperationGet}:       getContact,
		{ResourceContact, OperationGetAll}:    getAllContacts,
	}}
}

// Supports reports whether action is in the table.
func (d *Dispatcher) Supports(action Action) bool {
	_, ok := d.handlers[action]
	return ok
}

// Actions lists the table, sorted.
func (d *Dispatcher) Actions() []Action {
	out := make([]Action, 0, len(d.handlers))
	for a := range d.handlers {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Dispatch runs one item. get-style and send actions yield one record, getAll
// yields one per entity.
func (d *Dispatcher) Dispatch(ctx context.Context, client whatsapp.Client, action Action, p Params) ([]normalize.Record, error) {
	h, ok := d.handlers[action]
	if !ok {
		return nil, fmt.Errorf("%s: %w", action, ErrUnknownAction)
	}
	return h(ctx, client, p)
}

func requireParams(op string, fields ...[2]string) error {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			missing = append(missing, f[0])
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return whatsapp.ValidationError(op, fmt.Errorf("missing required parameter: %s", strings.Join(missing, ", ")))
}

// clientErr tags an untyped client failure; typed ones keep their kind.
func clientErr(op string, err error) error {
	if whatsapp.KindOf(err) != "" {
		return err
	}
	return whatsapp.ClientOperationError(op, err)
}

func sendMessage(ctx context.Context, client whatsapp.Client, p Params) ([]normalize.Record, error) {
	if err := requireParams("message.send", [2]string{"to", p.To}, [2]string{"message", p.Message}); err != nil {
		return nil, err
	}
	res, err := client.SendText(ctx, whatsapp.NormalizeRecipient(p.To), p.Message)
	if err != nil {
		return nil, clientErr("send message", err)
	}
	return []normalize.Record{normalize.MessageSent(res)}, nil
}

func sendMedia(ctx context.Context, client whatsapp.Client, p Params) ([]normalize.Record, error) {
	if err := requireParams("message.sendMedia", [2]string{"to", p.To}, [2]string{"mediaUrl", p.MediaURL}); err != nil {
		return nil, err
	}
	media, err := client.ResolveMediaFromURL(ctx, p.MediaURL)
	if err != nil {
		return nil, whatsapp.MediaFetchError("resolve media", err)
	}
	res, err := client.SendMedia(ctx, whatsapp.NormalizeRecipient(p.To), media, p.Caption)
	if err != nil {
		return nil, clientErr("send media", err)
	}
	return []normalize.Record{normalize.MessageSent(res)}, nil
}

func getChat(ctx context.Context, client whatsapp.Client, p Params) ([]normalize.Record, error) {
	if err := requireParams("chat.get", [2]string{"chatId", p.ChatID}); err != nil {
		return nil, err
	}
	chat, err := client.FetchChat(ctx, whatsapp.NormalizeRecipient(p.ChatID))
	if err != nil {
		return nil, clientErr("get chat", err)
	}
	return []normalize.Record{normalize.Chat(chat)}, nil
}

func getAllChats(ctx context.Context, client whatsapp.Client, _ Params) ([]normalize.Record, error) {
	chats, err := client.ListChats(ctx)
	if err != nil {
		return nil, clientErr("list chats", err)
	}
	return normalize.Chats(chats), nil
}

func getContact(ctx context.Context, client whatsapp.Client, p Params) ([]normalize.Record, error) {
	if err := requireParams("contact.get", [2]string{"contactId", p.ContactID}); err != nil {
		return nil, err
	}
	contact, err := client.FetchContact(ctx, whatsapp.NormalizeRecipient(p.ContactID))
	if err != nil {
		return nil, clientErr("get contact", err)
	}
	return []normalize.Record{normalize.Contact(contact)}, nil
}

func getAllContacts(ctx context.Context, client whatsapp.Client, _ Params) ([]normalize.Record, error) {
	contacts, err := client.ListContacts(ctx)
	if err != nil {
		return nil, clientErr("list contacts", err)
	}
	return normalize.Contacts(contacts), nil
}
