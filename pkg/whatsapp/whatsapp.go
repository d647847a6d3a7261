package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/env"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/log"
)

const (
	eventBufferSize      = 32
	datastoreOpenTimeout = 30 * time.Second
)

var devicePropsOnce sync.Once

// applyDeviceProps sets the companion properties shown in the phone's linked devices list.
func applyDeviceProps() {
	devicePropsOnce.Do(func() {
		store.DeviceProps.Os = proto.String(runtime.GOOS)
		store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_CHROME.Enum()
		store.DeviceProps.RequireFullSync = proto.Bool(false)

		if store.DeviceProps.Version == nil {
			return
		}
		if major, err := env.GetEnvInt("WHATSAPP_VERSION_MAJOR"); err == nil {
			store.DeviceProps.Version.Primary = proto.Uint32(uint32(major))
		}
		if minor, err := env.GetEnvInt("WHATSAPP_VERSION_MINOR"); err == nil {
			store.DeviceProps.Version.Secondary = proto.Uint32(uint32(minor))
		}
		if patch, err := env.GetEnvInt("WHATSAPP_VERSION_PATCH"); err == nil {
			store.DeviceProps.Version.Tertiary = proto.Uint32(uint32(patch))
		}
	})
}

type waClient struct {
	opts      Options
	location  SessionData
	container *sqlstore.Container
	client    *whatsmeow.Client
	chats     *chatIndex
	media     *MediaResolver
	convert   bool
	log       *logrus.Entry

	events    chan Event
	done      chan struct{}
	lifetime  context.Context
	cancel    context.CancelFunc
	handlerID uint32

	destroyOnce sync.Once
	destroyErr  error
}

// NewClient builds a whatsmeow-backed client. It satisfies Factory.
func NewClient(opts Options) (Client, error) {
	applyDeviceProps()

	location := DefaultDatastore()
	var deviceJID types.JID
	if opts.Session != nil {
		if opts.Session.Driver != "" {
			location.Driver = NormalizeDatastoreDriver(opts.Session.Driver)
			location.DSN = NormalizeDatastoreDSN(location.Driver, opts.Session.DSN)
		}
		if opts.Session.JID != "" {
			parsed, err := types.ParseJID(opts.Session.JID)
			if err != nil {
				return nil, ConfigurationError("parse session jid", err)
			}
			deviceJID = parsed
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), datastoreOpenTimeout)
	defer cancel()

	container, err := openContainer(ctx, location)
	if err != nil {
		return nil, ConfigurationError("open session store", err)
	}

	device, err := loadDevice(ctx, container, opts.Session != nil, deviceJID)
	if err != nil {
		_ = container.Close()
		return nil, ConfigurationError("load device", err)
	}

	client := whatsmeow.NewClient(device, log.WALogger("Client"))
	if opts.Proxy != "" {
		if err := client.SetProxyAddress(opts.Proxy); err != nil {
			_ = container.Close()
			return nil, ConfigurationError("set proxy", err)
		}
	}
	client.EnableAutoReconnect = true
	client.AutoTrustIdentity = true

	lifetime, stop := context.WithCancel(context.Background())
	c := &waClient{
		opts:      opts,
		location:  location,
		container: container,
		client:    client,
		chats:     newChatIndex(),
		media:     NewMediaResolver(),
		convert:   env.GetEnvBoolOrDefault("WHATSAPP_MEDIA_IMAGE_CONVERT_WEBP", false),
		log:       log.Print(nil).WithField("driver", location.Driver),
		events:    make(chan Event, eventBufferSize),
		done:      make(chan struct{}),
		lifetime:  lifetime,
		cancel:    stop,
	}
	c.handlerID = client.AddEventHandler(c.handleEvent)
	return c, nil
}

// loadDevice finds the paired device a session refers to, or a fresh one.
func loadDevice(ctx context.Context, container *sqlstore.Container, restore bool, jid types.JID) (*store.Device, error) {
	if !restore {
		return container.NewDevice(), nil
	}

	var (
		device *store.Device
		err    error
	)
	if jid.IsEmpty() {
		device, err = container.GetFirstDevice(ctx)
	} else {
		device, err = container.GetDevice(ctx, jid)
	}
	if err != nil {
		return nil, err
	}
	if device == nil {
		log.Print(nil).WithField("jid", log.MaskJID(jid.String())).Warn("Paired device not found in session store, starting a fresh pairing")
		return container.NewDevice(), nil
	}
	return device, nil
}

func (c *waClient) Connect(ctx context.Context) error {
	if c.isDestroyed() {
		return ErrClientDestroyed
	}

	if c.client.Store.ID == nil {
		qrChan, err := c.client.GetQRChannel(c.lifetime)
		if err != nil {
			return AuthenticationError("open qr channel", err)
		}
		go c.pumpQR(qrChan)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.client.Connect(); err != nil {
		return AuthenticationError("connect", err)
	}
	return nil
}

func (c *waClient) Events() <-chan Event {
	return c.events
}

func (c *waClient) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		if item.Event == "code" {
			if !c.opts.Headless {
				RenderQRTerminal(os.Stdout, item.Code)
			}
			c.push(Event{Kind: EventQR, QRCode: item.Code})
			continue
		}
		if err := qrItemError(item); err != nil {
			c.push(Event{Kind: EventAuthFailed, Err: AuthenticationError("pair device", err)})
			return
		}
	}
}

// push delivers an event unless the client is being destroyed.
func (c *waClient) push(evt Event) {
	select {
	case <-c.done:
	default:
		select {
		case c.events <- evt:
		case <-c.done:
		}
	}
}

func (c *waClient) handleEvent(raw interface{}) {
	switch e := raw.(type) {
	case *events.Connected:
		c.log.Info("Client connected: " + log.MaskJID(c.ownJID()))
		c.push(Event{Kind: EventReady, Session: c.sessionData()})
	case *events.Disconnected:
		c.log.Warn("Client disconnected: " + log.MaskJID(c.ownJID()))
		c.push(Event{Kind: EventDisconnected})
	case *events.StreamReplaced:
		c.push(Event{Kind: EventDisconnected, Err: errors.New("stream replaced by another connection")})
	case *events.LoggedOut:
		c.push(Event{Kind: EventAuthFailed, Err: AuthenticationError("session", fmt.Errorf("logged out: %s", e.Reason))})
	case *events.ConnectFailure:
		c.log.Error(fmt.Sprintf("Client connection failure: reason=%s, message=%s", e.Reason, e.Message))
		if e.Reason.IsLoggedOut() {
			c.push(Event{Kind: EventAuthFailed, Err: AuthenticationError("connect", fmt.Errorf("connect failure: %s", e.Reason))})
		}
	case *events.TemporaryBan:
		c.push(Event{Kind: EventAuthFailed, Err: AuthenticationError("session", fmt.Errorf("temporarily banned: %s", e.Code))})
	case *events.ClientOutdated:
		c.push(Event{Kind: EventAuthFailed, Err: AuthenticationError("connect", ErrWAVersionOutdatedForQR)})
	case *events.PairError:
		c.push(Event{Kind: EventAuthFailed, Err: AuthenticationError("pair device", e.Error)})
	case *events.HistorySync:
		for _, conv := range e.Data.GetConversations() {
			c.chats.observe(NormalizeRecipient(conv.GetID()), conv.GetName(), int64(conv.GetConversationTimestamp()), int(conv.GetUnreadCount()))
		}
	case *events.Message:
		c.chats.observeMessage(e.Info.Chat.String(), e.Info.Timestamp.Unix(), e.Info.IsFromMe)
		if e.Info.Chat.Server == types.BroadcastServer || e.Info.IsFromMe {
			return
		}
		if msg := c.convertMessage(e); msg != nil {
			c.push(Event{Kind: EventMessage, Message: msg})
		}
	}
}

func (c *waClient) convertMessage(evt *events.Message) *Message {
	m := evt.Message
	if m == nil || m.GetProtocolMessage() != nil {
		return nil
	}

	var body string
	switch {
	case m.Conversation != nil:
		body = m.GetConversation()
	case m.ExtendedTextMessage != nil:
		body = m.GetExtendedTextMessage().GetText()
	case m.ImageMessage != nil:
		body = m.GetImageMessage().GetCaption()
	case m.VideoMessage != nil:
		body = m.GetVideoMessage().GetCaption()
	case m.DocumentMessage != nil:
		body = m.GetDocumentMessage().GetCaption()
	}
	hasMedia := m.ImageMessage != nil || m.VideoMessage != nil || m.AudioMessage != nil ||
		m.DocumentMessage != nil || m.StickerMessage != nil

	if body == "" && !hasMedia {
		return nil
	}

	return &Message{
		ID:        evt.Info.ID,
		Body:      body,
		Timestamp: evt.Info.Timestamp.Unix(),
		SenderID:  c.resolveSender(evt.Info.Sender).String(),
		ChatID:    evt.Info.Chat.String(),
		PushName:  evt.Info.PushName,
		IsGroup:   evt.Info.IsGroup,
		HasMedia:  hasMedia,
		Raw:       m,
	}
}

// resolveSender maps hidden-user (LID) senders to their phone number JID when the mapping is known.
func (c *waClient) resolveSender(sender types.JID) types.JID {
	sender = sender.ToNonAD()
	if sender.Server != types.HiddenUserServer {
		return sender
	}
	pn, err := c.client.Store.LIDs.GetPNForLID(c.lifetime, sender)
	if err != nil || pn.IsEmpty() {
		return sender
	}
	return pn.ToNonAD()
}

func (c *waClient) ownJID() string {
	if c.client.Store.ID == nil {
		return ""
	}
	return c.client.Store.ID.ToNonAD().String()
}

func (c *waClient) sessionData() *SessionData {
	data := c.location
	if c.client.Store.ID != nil {
		data.JID = c.client.Store.ID.String()
	}
	return &data
}

// ready reports whether the client can serve requests.
func (c *waClient) ready() error {
	if c.isDestroyed() {
		return ErrClientDestroyed
	}
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	if !c.client.IsLoggedIn() {
		return ErrNotLoggedIn
	}
	return nil
}

func (c *waClient) isDestroyed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *waClient) SendText(ctx context.Context, chatID string, text string) (SendResult, error) {
	if err := c.ready(); err != nil {
		return SendResult{}, err
	}
	remoteJID, err := ParseRecipient(chatID)
	if err != nil {
		return SendResult{}, err
	}

	msgExtra := whatsmeow.SendRequestExtra{ID: c.client.GenerateMessageID()}
	msgContent := &waE2E.Message{
		Conversation: proto.String(text),
	}
	resp, err := c.client.SendMessage(ctx, remoteJID, msgContent, msgExtra)
	if err != nil {
		return SendResult{}, err
	}
	return sendResult(msgExtra.ID, resp), nil
}

func (c *waClient) SendMedia(ctx context.Context, chatID string, media *Media, caption string) (SendResult, error) {
	if err := c.ready(); err != nil {
		return SendResult{}, err
	}
	if media == nil || len(media.Data) == 0 {
		return SendResult{}, errors.New("media payload is empty")
	}
	remoteJID, err := ParseRecipient(chatID)
	if err != nil {
		return SendResult{}, err
	}

	msgContent, err := c.uploadMedia(ctx, media, caption)
	if err != nil {
		return SendResult{}, err
	}

	msgExtra := whatsmeow.SendRequestExtra{ID: c.client.GenerateMessageID()}
	resp, err := c.client.SendMessage(ctx, remoteJID, msgContent, msgExtra)
	if err != nil {
		return SendResult{}, err
	}
	return sendResult(msgExtra.ID, resp), nil
}

func sendResult(id types.MessageID, resp whatsmeow.SendResponse) SendResult {
	if resp.ID != "" {
		id = resp.ID
	}
	ts := resp.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return SendResult{ID: id, Timestamp: ts.Unix()}
}

// uploadMedia uploads the payload with the media type its MIME implies and builds the message.
func (c *waClient) uploadMedia(ctx context.Context, media *Media, caption string) (*waE2E.Message, error) {
	data := media.Data
	mimeType := media.Mimetype
	if mimeType == "" {
		mimeType = detectMimetype("", data)
	}

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		if mimeType == "image/webp" && c.convert {
			converted, err := convertWebPToPNG(data)
			if err != nil {
				return nil, err
			}
			data, mimeType = converted, "image/png"
		}
		uploaded, err := c.client.Upload(ctx, data, whatsmeow.MediaImage)
		if err != nil {
			return nil, fmt.Errorf("upload image: %w", err)
		}
		msg := &waE2E.ImageMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			Mimetype:      proto.String(mimeType),
			FileLength:    proto.Uint64(uploaded.FileLength),
			FileSHA256:    uploaded.FileSHA256,
			FileEncSHA256: uploaded.FileEncSHA256,
			MediaKey:      uploaded.MediaKey,
		}
		if caption != "" {
			msg.Caption = proto.String(caption)
		}
		if thumb, err := jpegThumbnail(data); err == nil {
			msg.JPEGThumbnail = thumb
		} else {
			c.log.WithError(err).Debug("Skipping image thumbnail")
		}
		return &waE2E.Message{ImageMessage: msg}, nil

	case strings.HasPrefix(mimeType, "video/"):
		uploaded, err := c.client.Upload(ctx, data, whatsmeow.MediaVideo)
		if err != nil {
			return nil, fmt.Errorf("upload video: %w", err)
		}
		msg := &waE2E.VideoMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			Mimetype:      proto.String(mimeType),
			FileLength:    proto.Uint64(uploaded.FileLength),
			FileSHA256:    uploaded.FileSHA256,
			FileEncSHA256: uploaded.FileEncSHA256,
			MediaKey:      uploaded.MediaKey,
		}
		if caption != "" {
			msg.Caption = proto.String(caption)
		}
		return &waE2E.Message{VideoMessage: msg}, nil

	case strings.HasPrefix(mimeType, "audio/"):
		uploaded, err := c.client.Upload(ctx, data, whatsmeow.MediaAudio)
		if err != nil {
			return nil, fmt.Errorf("upload audio: %w", err)
		}
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			Mimetype:      proto.String(mimeType),
			FileLength:    proto.Uint64(uploaded.FileLength),
			FileSHA256:    uploaded.FileSHA256,
			FileEncSHA256: uploaded.FileEncSHA256,
			MediaKey:      uploaded.MediaKey,
		}}, nil

	default:
		uploaded, err := c.client.Upload(ctx, data, whatsmeow.MediaDocument)
		if err != nil {
			return nil, fmt.Errorf("upload document: %w", err)
		}
		filename := media.Filename
		if filename == "" {
			filename = fallbackFilename(mimeType)
		}
		msg := &waE2E.DocumentMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			Mimetype:      proto.String(mimeType),
			FileName:      proto.String(filename),
			FileLength:    proto.Uint64(uploaded.FileLength),
			FileSHA256:    uploaded.FileSHA256,
			FileEncSHA256: uploaded.FileEncSHA256,
			MediaKey:      uploaded.MediaKey,
		}
		if caption != "" {
			msg.Caption = proto.String(caption)
		}
		return &waE2E.Message{DocumentMessage: msg}, nil
	}
}

func (c *waClient) FetchChat(ctx context.Context, id string) (Chat, error) {
	if err := c.ready(); err != nil {
		return Chat{}, err
	}
	jid, err := ParseRecipient(id)
	if err != nil {
		return Chat{}, err
	}

	chat, known := c.chats.get(jid.String())
	if !known {
		chat = Chat{ID: jid.String(), IsGroup: jid.Server == types.GroupServer}
	}

	if jid.Server == types.GroupServer {
		info, err := c.client.GetGroupInfo(ctx, jid)
		if err != nil {
			return Chat{}, err
		}
		chat.Name = info.Name
		if chat.Timestamp == 0 && !info.GroupCreated.IsZero() {
			chat.Timestamp = info.GroupCreated.Unix()
		}
		return chat, nil
	}

	contact, err := c.client.Store.Contacts.GetContact(ctx, jid)
	if err == nil {
		if name := contactDisplayName(contact); name != "" {
			chat.Name = name
		}
	}
	if chat.Name == "" {
		chat.Name = jid.User
	}
	return chat, nil
}

func (c *waClient) ListChats(ctx context.Context) ([]Chat, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	contacts, err := c.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		c.log.WithError(err).Warn("Failed to load contacts for chat names")
	}
	for jid, info := range contacts {
		if jid.Server != types.DefaultUserServer || info.FullName == "" {
			continue
		}
		if own := c.client.Store.ID; own != nil && own.User == jid.User {
			continue
		}
		c.chats.seed(jid.ToNonAD().String(), contactDisplayName(info))
	}

	known := c.chats.list()
	byID := make(map[string]int, len(known))
	for i, chat := range known {
		byID[chat.ID] = i
	}

	groups, err := c.client.GetJoinedGroups(ctx)
	if err != nil {
		return nil, err
	}
	for _, group := range groups {
		id := group.JID.String()
		if i, ok := byID[id]; ok {
			known[i].Name = group.Name
			known[i].IsGroup = true
			continue
		}
		chat := Chat{ID: id, Name: group.Name, IsGroup: true}
		if !group.GroupCreated.IsZero() {
			chat.Timestamp = group.GroupCreated.Unix()
		}
		byID[id] = len(known)
		known = append(known, chat)
	}

	for i := range known {
		if known[i].IsGroup || known[i].Name != "" {
			continue
		}
		jid, err := types.ParseJID(known[i].ID)
		if err != nil {
			continue
		}
		if contact, ok := contacts[jid]; ok {
			known[i].Name = contactDisplayName(contact)
		}
		if known[i].Name == "" {
			known[i].Name = jid.User
		}
	}

	sortChats(known)
	return known, nil
}

func (c *waClient) FetchContact(ctx context.Context, id string) (Contact, error) {
	if err := c.ready(); err != nil {
		return Contact{}, err
	}
	jid, err := ParseRecipient(id)
	if err != nil {
		return Contact{}, err
	}

	if jid.Server == types.GroupServer {
		info, err := c.client.GetGroupInfo(ctx, jid)
		if err != nil {
			return Contact{}, err
		}
		return Contact{ID: jid.String(), Name: info.Name, IsGroup: true}, nil
	}

	info, err := c.client.Store.Contacts.GetContact(ctx, jid)
	if err != nil {
		return Contact{}, err
	}
	return c.contact(jid, info), nil
}

func (c *waClient) ListContacts(ctx context.Context) ([]Contact, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	all, err := c.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Contact, 0, len(all))
	for jid, info := range all {
		out = append(out, c.contact(jid, info))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *waClient) contact(jid types.JID, info types.ContactInfo) Contact {
	jid = jid.ToNonAD()
	contact := Contact{
		ID:          jid.String(),
		Name:        contactDisplayName(info),
		PushName:    info.PushName,
		IsGroup:     jid.Server == types.GroupServer,
		IsMyContact: info.Found && info.FullName != "",
	}
	if jid.Server == types.DefaultUserServer {
		contact.Number = jid.User
	}
	if own := c.client.Store.ID; own != nil && own.User == jid.User {
		contact.IsMe = true
	}
	return contact
}

func contactDisplayName(info types.ContactInfo) string {
	switch {
	case info.FullName != "":
		return info.FullName
	case info.FirstName != "":
		return info.FirstName
	case info.BusinessName != "":
		return info.BusinessName
	}
	return ""
}

func (c *waClient) ResolveMediaFromURL(ctx context.Context, url string) (*Media, error) {
	return c.media.Resolve(ctx, url)
}

func (c *waClient) DownloadMedia(ctx context.Context, msg *Message) (*Media, error) {
	if msg == nil || !msg.HasMedia {
		return nil, MediaDownloadError("download media", errors.New("message has no media"))
	}
	raw, ok := msg.Raw.(*waE2E.Message)
	if !ok || raw == nil {
		return nil, MediaDownloadError("download media", errors.New("message payload is not downloadable"))
	}

	var (
		downloadable whatsmeow.DownloadableMessage
		mimeType     string
		filename     string
	)
	switch {
	case raw.ImageMessage != nil:
		downloadable, mimeType = raw.GetImageMessage(), raw.GetImageMessage().GetMimetype()
	case raw.VideoMessage != nil:
		downloadable, mimeType = raw.GetVideoMessage(), raw.GetVideoMessage().GetMimetype()
	case raw.AudioMessage != nil:
		downloadable, mimeType = raw.GetAudioMessage(), raw.GetAudioMessage().GetMimetype()
	case raw.DocumentMessage != nil:
		doc := raw.GetDocumentMessage()
		downloadable, mimeType, filename = doc, doc.GetMimetype(), doc.GetFileName()
	case raw.StickerMessage != nil:
		downloadable, mimeType = raw.GetStickerMessage(), raw.GetStickerMessage().GetMimetype()
	default:
		return nil, MediaDownloadError("download media", errors.New("unsupported media message"))
	}

	data, err := c.client.Download(ctx, downloadable)
	if err != nil {
		return nil, MediaDownloadError("download media", err)
	}

	if mimeType == "" {
		mimeType = detectMimetype("", data)
	}
	if filename == "" {
		filename = msg.ID
		if m := mimetype.Lookup(mimeTypeBase(mimeType)); m != nil {
			filename += m.Extension()
		}
	}
	return &Media{Mimetype: mimeType, Data: data, Filename: filename}, nil
}

func mimeTypeBase(mt string) string {
	base, _, _ := strings.Cut(mt, ";")
	return strings.TrimSpace(base)
}

func (c *waClient) Destroy() error {
	c.destroyOnce.Do(func() {
		c.cancel()
		close(c.done)
		c.client.RemoveEventHandler(c.handlerID)
		c.client.Disconnect()
		c.destroyErr = c.container.Close()
		c.log.Debug("Client destroyed")
	})
	return c.destroyErr
}
