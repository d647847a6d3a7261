// Package emitter turns a session's inbound messages into trigger events.
package emitter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp"
)

type TriggerType string

const (
	TriggerNewMessage         TriggerType = "newMessage"
	TriggerMessageWithKeyword TriggerType = "messageWithKeyword"
)

type TriggerConfig struct {
	TriggerType   TriggerType `json:"triggerType"`
	Keyword       string      `json:"keyword,omitempty"`
	ContactFilter string      `json:"contactFilter,omitempty"`
	IncludeMedia  bool        `json:"includeMedia"`
}

func (c TriggerConfig) Validate() error {
	switch c.TriggerType {
	case TriggerNewMessage, TriggerMessageWithKeyword:
		return nil
	case "":
		return errors.New("triggerType is required")
	}
	return fmt.Errorf("unsupported triggerType %q", c.TriggerType)
}

// Accept decides whether a message from senderID with body fires the trigger.
// The contact filter is a substring match on the sender id; the keyword only
// applies to keyword triggers and ignores case.
func Accept(cfg TriggerConfig, senderID string, body string) bool {
	if filter := contactFilter(cfg.ContactFilter); filter != "" && !strings.Contains(senderID, filter) {
		return false
	}
	if cfg.TriggerType == TriggerMessageWithKeyword && cfg.Keyword != "" {
		if !strings.Contains(strings.ToLower(body), strings.ToLower(cfg.Keyword)) {
			return false
		}
	}
	return true
}

// contactFilter accepts full identifiers in any supported form.
func contactFilter(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.ContainsRune(raw, '@') {
		return whatsapp.NormalizeRecipient(raw)
	}
	return strings.TrimPrefix(raw, "+")
}
