package whatsapp

import (
	"sort"
	"sync"
)

// chatIndex remembers the chats a client has seen through history sync and
// live messages. whatsmeow keeps no chat list of its own.
type chatIndex struct {
	mu    sync.RWMutex
	chats map[string]*Chat
}

func newChatIndex() *chatIndex {
	return &chatIndex{chats: make(map[string]*Chat)}
}

// observe records a chat from a history sync conversation.
func (idx *chatIndex) observe(id string, name string, timestamp int64, unread int) {
	if id == "" {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	chat := idx.entry(id)
	if name != "" {
		chat.Name = name
	}
	if timestamp > chat.Timestamp {
		chat.Timestamp = timestamp
	}
	chat.UnreadCount = unread
}

// observeMessage bumps the chat's last activity; messages from others count as unread.
func (idx *chatIndex) observeMessage(id string, timestamp int64, fromMe bool) {
	if id == "" {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	chat := idx.entry(id)
	if timestamp > chat.Timestamp {
		chat.Timestamp = timestamp
	}
	if fromMe {
		chat.UnreadCount = 0
	} else {
		chat.UnreadCount++
	}
}

// seed adds a direct chat for a saved contact the index has not seen. Nothing
// is known about its activity until a message arrives.
func (idx *chatIndex) seed(id string, name string) {
	if id == "" {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if chat, ok := idx.chats[id]; ok {
		if chat.Name == "" {
			chat.Name = name
		}
		return
	}
	idx.chats[id] = &Chat{ID: id, Name: name, IsGroup: IsGroupID(id)}
}

func (idx *chatIndex) entry(id string) *Chat {
	chat, ok := idx.chats[id]
	if !ok {
		chat = &Chat{ID: id, IsGroup: IsGroupID(id)}
		idx.chats[id] = chat
	}
	return chat
}

func (idx *chatIndex) get(id string) (Chat, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	chat, ok := idx.chats[id]
	if !ok {
		return Chat{}, false
	}
	return *chat, true
}

// list returns every known chat, most recent first.
func (idx *chatIndex) list() []Chat {
	idx.mu.RLock()
	out := make([]Chat, 0, len(idx.chats))
	for _, chat := range idx.chats {
		out = append(out, *chat)
	}
	idx.mu.RUnlock()

	sortChats(out)
	return out
}

func sortChats(chats []Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		if chats[i].Timestamp != chats[j].Timestamp {
			return chats[i].Timestamp > chats[j].Timestamp
		}
		return chats[i].ID < chats[j].ID
	})
}
