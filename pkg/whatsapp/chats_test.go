package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatIndexObserve(t *testing.T) {
	idx := newChatIndex()
	idx.observe("79123456789@s.whatsapp.net", "Alice", 100, 2)
	idx.observe("120363012345678901@g.us", "Team", 200, 0)
	idx.observe("", "ignored", 300, 0)

	chats := idx.list()
	require.Len(t, chats, 2)
	assert.Equal(t, "120363012345678901@g.us", chats[0].ID)
	assert.True(t, chats[0].IsGroup)
	assert.Equal(t, "Alice", chats[1].Name)
	assert.Equal(t, 2, chats[1].UnreadCount)
	assert.False(t, chats[1].IsGroup)
}

func TestChatIndexObserveMessage(t *testing.T) {
	idx := newChatIndex()
	idx.observe("79123456789@s.whatsapp.net", "Alice", 100, 0)

	idx.observeMessage("79123456789@s.whatsapp.net", 150, false)
	idx.observeMessage("79123456789@s.whatsapp.net", 120, false)

	chat, ok := idx.get("79123456789@s.whatsapp.net")
	require.True(t, ok)
	assert.Equal(t, int64(150), chat.Timestamp)
	assert.Equal(t, 2, chat.UnreadCount)
	assert.Equal(t, "Alice", chat.Name)

	idx.observeMessage("79123456789@s.whatsapp.net", 160, true)
	chat, _ = idx.get("79123456789@s.whatsapp.net")
	assert.Equal(t, 0, chat.UnreadCount)

	_, ok = idx.get("70000000000@s.whatsapp.net")
	assert.False(t, ok)
}

func TestSortChatsTieBreaksByID(t *testing.T) {
	chats := []Chat{{ID: "b", Timestamp: 5}, {ID: "a", Timestamp: 5}, {ID: "c", Timestamp: 9}}
	sortChats(chats)
	assert.Equal(t, []string{"c", "a", "b"}, []string{chats[0].ID, chats[1].ID, chats[2].ID})
}

func TestChatIndexSeedKeepsObservedActivity(t *testing.T) {
	idx := newChatIndex()
	idx.observeMessage("79123456789@s.whatsapp.net", 150, false)

	idx.seed("79123456789@s.whatsapp.net", "Alice")
	idx.seed("70000000000@s.whatsapp.net", "Bob")
	idx.seed("", "ignored")

	chats := idx.list()
	require.Len(t, chats, 2)
	assert.Equal(t, "79123456789@s.whatsapp.net", chats[0].ID)
	assert.Equal(t, "Alice", chats[0].Name)
	assert.Equal(t, int64(150), chats[0].Timestamp)
	assert.Equal(t, 1, chats[0].UnreadCount)

	assert.Equal(t, "Bob", chats[1].Name)
	assert.Zero(t, chats[1].Timestamp)
	assert.False(t, chats[1].IsGroup)
}
