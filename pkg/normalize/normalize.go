// Package normalize turns client results into flat records whose JSON field
// order is fixed per kind.
package normalize

import (
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp"
)

type Kind string

const (
	KindMessageSent Kind = "messageSent"
	KindChat        Kind = "chat"
	KindContact     Kind = "contact"
	KindFailure     Kind = "failure"
	KindInbound     Kind = "inbound"
	KindStatus      Kind = "status"
	KindManual      Kind = "manual"
)

const (
	MessageQRRequired   = "QR code authentication required. Scan the QR code with WhatsApp on your phone."
	MessageConnected    = "WhatsApp connected and ready to receive messages"
	MessageSessionReady = "Session data is ready to be saved to the credentials"
	MessageManual       = "Trigger started manually"
)

// Record is any normalized output item.
type Record interface {
	RecordKind() Kind
}

type MessageSentRecord struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
}

type ChatRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsGroup     bool   `json:"isGroup"`
	Timestamp   int64  `json:"timestamp"`
	UnreadCount int    `json:"unreadCount"`
}

type ContactRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Number      string `json:"number"`
	PushName    string `json:"pushname"`
	IsGroup     bool   `json:"isGroup"`
	IsMe        bool   `json:"isMe"`
	IsMyContact bool   `json:"isMyContact"`
}

// FailureRecord holds the place of an item that failed in continue-on-fail mode.
type FailureRecord struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type Party struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
}

type ChatRef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsGroup bool   `json:"isGroup"`
}

type MediaRecord struct {
	Mimetype string `json:"mimetype"`
	Data     string `json:"data"`
	Filename string `json:"filename"`
}

type InboundRecord struct {
	MessageID  string       `json:"messageId"`
	Body       string       `json:"body"`
	Timestamp  int64        `json:"timestamp"`
	From       Party        `json:"from"`
	Chat       ChatRef      `json:"chat"`
	HasMedia   bool         `json:"hasMedia"`
	Media      *MediaRecord `json:"media,omitempty"`
	MediaError string       `json:"mediaError,omitempty"`
}

type StatusRecord struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	QRCode      string `json:"qrCode,omitempty"`
	SessionData string `json:"sessionData,omitempty"`
}

type ManualRecord struct {
	Success  bool   `json:"success"`
	Manually bool   `json:"manually"`
	Message  string `json:"message"`
}

func (MessageSentRecord) RecordKind() Kind { return KindMessageSent }
func (ChatRecord) RecordKind() Kind        { return KindChat }
func (ContactRecord) RecordKind() Kind     { return KindContact }
func (FailureRecord) RecordKind() Kind     { return KindFailure }
func (InboundRecord) RecordKind() Kind     { return KindInbound }
func (StatusRecord) RecordKind() Kind      { return KindStatus }
func (ManualRecord) RecordKind() Kind      { return KindManual }

func MessageSent(res whatsapp.SendResult) MessageSentRecord {
	return MessageSentRecord{
		Success:   true,
		MessageID: res.ID,
		Timestamp: res.Timestamp,
	}
}

func Chat(chat whatsapp.Chat) ChatRecord {
	return ChatRecord{
		ID:          chat.ID,
		Name:        chat.Name,
		IsGroup:     chat.IsGroup,
		Timestamp:   chat.Timestamp,
		UnreadCount: chat.UnreadCount,
	}
}

// Chats keeps the order the client returned.
func Chats(chats []whatsapp.Chat) []Record {
	out := make([]Record, 0, len(chats))
	for _, chat := range chats {
		out = append(out, Chat(chat))
	}
	return out
}

func Contact(contact whatsapp.Contact) ContactRecord {
	return ContactRecord{
		ID:          contact.ID,
		Name:        contact.Name,
		Number:      contact.Number,
		PushName:    contact.PushName,
		IsGroup:     contact.IsGroup,
		IsMe:        contact.IsMe,
		IsMyContact: contact.IsMyContact,
	}
}

func Contacts(contacts []whatsapp.Contact) []Record {
	out := make([]Record, 0, len(contacts))
	for _, contact := range contacts {
		out = append(out, Contact(contact))
	}
	return out
}

func Failure(err error) FailureRecord {
	if err == nil {
		return FailureRecord{}
	}
	kind := whatsapp.KindOf(err)
	if kind == "" {
		kind = "Error"
	}
	return FailureRecord{Error: err.Error(), Kind: kind}
}

// Inbound builds the event for an accepted message. sender and chat may be
// zero values when the lookups failed; the message's own ids fill in.
func Inbound(msg *whatsapp.Message, sender whatsapp.Contact, chat whatsapp.Chat, media *whatsapp.Media, mediaErr error) InboundRecord {
	from := Party{
		ID:     msg.SenderID,
		Name:   firstNonEmpty(sender.Name, sender.PushName, msg.PushName),
		Number: sender.Number,
	}
	if from.Number == "" && !whatsapp.IsGroupID(msg.SenderID) {
		from.Number = whatsapp.DecomposeJID(msg.SenderID)
	}

	ref := ChatRef{
		ID:      msg.ChatID,
		Name:    chat.Name,
		IsGroup: msg.IsGroup || chat.IsGroup,
	}
	if ref.Name == "" && !ref.IsGroup {
		ref.Name = from.Name
	}

	rec := InboundRecord{
		MessageID: msg.ID,
		Body:      msg.Body,
		Timestamp: msg.Timestamp,
		From:      from,
		Chat:      ref,
		HasMedia:  msg.HasMedia,
	}
	if mediaErr != nil {
		rec.MediaError = mediaErr.Error()
	} else if media != nil {
		rec.Media = &MediaRecord{
			Mimetype: media.Mimetype,
			Data:     media.Base64(),
			Filename: media.Filename,
		}
	}
	return rec
}

func Status(success bool, message string) StatusRecord {
	return StatusRecord{Success: success, Message: message}
}

// PairingRequired is published while the session waits for a QR scan.
func PairingRequired(qrCode string) StatusRecord {
	return StatusRecord{Success: false, Message: MessageQRRequired, QRCode: qrCode}
}

func Connected() StatusRecord {
	return Status(true, MessageConnected)
}

// SessionReady carries a freshly paired session blob for the operator to persist.
func SessionReady(blob string) StatusRecord {
	return StatusRecord{Success: true, Message: MessageSessionReady, SessionData: blob}
}

func Manual(message string) ManualRecord {
	if message == "" {
		message = MessageManual
	}
	return ManualRecord{Success: true, Manually: true, Message: message}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
