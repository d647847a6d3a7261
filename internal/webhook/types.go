package webhook

import (
	"time"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/normalize"
)

type EventType string

const (
	EventTriggerStatus  EventType = "trigger.status"
	EventTriggerMessage EventType = "trigger.message"
	EventTriggerManual  EventType = "trigger.manual"
)

// EventTypeOf classifies an emitted record for the X-Webhook-Event header.
func EventTypeOf(rec normalize.Record) EventType {
	switch rec.(type) {
	case normalize.InboundRecord, *normalize.InboundRecord:
		return EventTriggerMessage
	case normalize.ManualRecord, *normalize.ManualRecord:
		return EventTriggerManual
	}
	return EventTriggerStatus
}

// Config is the sink a trigger forwards its records to.
type Config struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

type Event struct {
	EventType EventType        `json:"event_type"`
	TriggerID string           `json:"trigger_id"`
	Sequence  uint64           `json:"sequence"`
	Timestamp time.Time        `json:"timestamp"`
	Data      normalize.Record `json:"data"`
}
