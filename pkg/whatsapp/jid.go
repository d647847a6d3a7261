package whatsapp

import (
	"errors"
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// LegacyUserServer is the personal-chat suffix used by web-based clients.
// It is accepted on input and rewritten to types.DefaultUserServer.
const LegacyUserServer = "c.us"

// NormalizeRecipient turns a phone number, bare group id or full identifier into
// the canonical "<user>@<server>" form. Applying it twice yields the same value.
func NormalizeRecipient(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}

	user, server, hasServer := strings.Cut(id, "@")
	user = strings.TrimSpace(user)
	if len(user) > 0 && user[0] == '+' {
		user = user[1:]
	}
	if user == "" {
		return ""
	}

	if hasServer {
		server = strings.ToLower(strings.TrimSpace(server))
		if server == LegacyUserServer || server == "" {
			server = types.DefaultUserServer
		}
		return user + "@" + server
	}

	if strings.ContainsRune(user, '-') || len(user) >= 18 {
		return user + "@" + types.GroupServer
	}
	return user + "@" + types.DefaultUserServer
}

// ParseRecipient normalizes id and parses it into a whatsmeow JID.
func ParseRecipient(id string) (types.JID, error) {
	normalized := NormalizeRecipient(id)
	if normalized == "" {
		return types.EmptyJID, errors.New("recipient identifier is empty")
	}
	return types.ParseJID(normalized)
}

// DecomposeJID returns the user part of an identifier without '+' or server suffix.
func DecomposeJID(id string) string {
	if strings.ContainsRune(id, '@') {
		id, _, _ = strings.Cut(id, "@")
	}

	if len(id) > 0 && id[0] == '+' {
		id = id[1:]
	}

	return strings.TrimSpace(id)
}

// IsGroupID reports whether a normalized identifier addresses a group chat.
func IsGroupID(id string) bool {
	return strings.HasSuffix(NormalizeRecipient(id), "@"+types.GroupServer)
}
