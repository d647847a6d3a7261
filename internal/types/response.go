package types

import (
	"time"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/dispatch"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/emitter"
)

type ResponseAction struct {
	Action  string                `json:"action"`
	Results []dispatch.ItemResult `json:"results"`
}

type ResponseTrigger struct {
	ID        string                `json:"id"`
	State     string                `json:"state"`
	Config    emitter.TriggerConfig `json:"config"`
	Webhook   string                `json:"webhook,omitempty"`
	Error     string                `json:"error,omitempty"`
	Emitted   uint64                `json:"emitted"`
	CreatedAt time.Time             `json:"createdAt"`
}

type ResponseToken struct {
	Token     string     `json:"token"`
	Host      string     `json:"host"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}
