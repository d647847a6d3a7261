package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/normalize"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp/whatsapptest"
)

func TestSendMessageNormalizesRecipient(t *testing.T) {
	client := whatsapptest.NewClient()
	d := New()

	recs, err := d.Dispatch(context.Background(), client, Action{ResourceMessage, OperationSend}, Params{To: "+79123456789", Message: "hi"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, normalize.MessageSentRecord{Success: true, MessageID: "MSG001", Timestamp: 1700000001}, recs[0])

	sent := client.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "79123456789@s.whatsapp.net", sent[0].ChatID)
	assert.Equal(t, "hi", sent[0].Text)
}

func TestSendMessageValidation(t *testing.T) {
	client := whatsapptest.NewClient()

	_, err := New().Dispatch(context.Background(), client, Action{ResourceMessage, OperationSend}, Params{To: "79123456789"})
	assert.ErrorIs(t, err, whatsapp.ErrValidation)
	assert.Contains(t, err.Error(), "message")
	assert.Empty(t, client.Calls())
}

func TestSendMedia(t *testing.T) {
	client := whatsapptest.NewClient()
	media := &whatsapp.Media{Mimetype: "image/png", Data: []byte{1, 2}, Filename: "a.png"}
	client.Media["https://cdn.example.com/a.png"] = media

	recs, err := New().Dispatch(context.Background(), client, Action{ResourceMessage, OperationSendMedia},
		Params{To: "79123456789@c.us", MediaURL: "https://cdn.example.com/a.png", Caption: "look"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].(normalize.MessageSentRecord).Success)

	sent := client.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "79123456789@s.whatsapp.net", sent[0].ChatID)
	assert.Same(t, media, sent[0].Media)
	assert.Equal(t, "look", sent[0].Caption)
}

func TestSendMediaFetchFailure(t *testing.T) {
	client := whatsapptest.NewClient()

	_, err := New().Dispatch(context.Background(), client, Action{ResourceMessage, OperationSendMedia},
		Params{To: "79123456789", MediaURL: "https://cdn.example.com/missing.png"})
	assert.ErrorIs(t, err, whatsapp.ErrMediaFetch)
	assert.Empty(t, client.Sent())
}

func TestClientFailureKind(t *testing.T) {
	client := whatsapptest.NewClient()
	client.SendErr["79123456789@s.whatsapp.net"] = errors.New("server returned error 479")

	_, err := New().Dispatch(context.Background(), client, Action{ResourceMessage, OperationSend}, Params{To: "79123456789", Message: "x"})
	assert.ErrorIs(t, err, whatsapp.ErrClientOperation)
	assert.Equal(t, "ClientOperationError", whatsapp.KindOf(err))
}

func TestChatOperations(t *testing.T) {
	client := whatsapptest.NewClient()
	client.Chats = []whatsapp.Chat{
		{ID: "120363012345678901@g.us", Name: "Team", IsGroup: true, Timestamp: 30},
		{ID: "79123456789@s.whatsapp.net", Name: "Alice", Timestamp: 20, UnreadCount: 1},
	}
	d := New()

	recs, err := d.Dispatch(context.Background(), client, Action{ResourceChat, OperationGet}, Params{ChatID: "79123456789"})
	require.NoError(t, err)
	assert.Equal(t, []normalize.Record{normalize.ChatRecord{ID: "79123456789@s.whatsapp.net", Name: "Alice", Timestamp: 20, UnreadCount: 1}}, recs)

	recs, err = d.Dispatch(context.Background(), client, Action{ResourceChat, OperationGetAll}, Params{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "120363012345678901@g.us", recs[0].(normalize.ChatRecord).ID)

	_, err = d.Dispatch(context.Background(), client, Action{ResourceChat, OperationGet}, Params{ChatID: "70000000000"})
	assert.ErrorIs(t, err, whatsapp.ErrClientOperation)
	assert.ErrorIs(t, err, whatsapptest.ErrNotFound)
}

func TestContactOperations(t *testing.T) {
	client := whatsapptest.NewClient()
	client.Contacts = []whatsapp.Contact{
		{ID: "79123456789@s.whatsapp.net", Name: "Alice", Number: "79123456789", IsMyContact: true},
		{ID: "70000000000@s.whatsapp.net", PushName: "Bob", Number: "70000000000"},
	}
	d := New()

	recs, err := d.Dispatch(context.Background(), client, Action{ResourceContact, OperationGet}, Params{ContactID: "70000000000@c.us"})
	require.NoError(t, err)
	assert.Equal(t, "Bob", recs[0].(normalize.ContactRecord).PushName)

	recs, err = d.Dispatch(context.Background(), client, Action{ResourceContact, OperationGetAll}, Params{})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	_, err = d.Dispatch(context.Background(), client, Action{ResourceContact, OperationGet}, Params{})
	assert.ErrorIs(t, err, whatsapp.ErrValidation)
}

func TestUnknownAction(t *testing.T) {
	d := New()
	_, err := d.Dispatch(context.Background(), whatsapptest.NewClient(), Action{"message", "delete"}, Params{})
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.False(t, d.Supports(Action{"group", "getAll"}))
	assert.Len(t, d.Actions(), 6)
	assert.Equal(t, "chat.get", d.Actions()[0].String())
}
