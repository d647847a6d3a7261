package types

import (
	"github.com/gdbrns/go-whatsapp-workflow-adapter/internal/webhook"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/dispatch"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/emitter"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/session"
)

// RequestCredential selects the WhatsApp account. An inline credential wins;
// otherwise CredentialName is looked up in the configured credential store.
type RequestCredential struct {
	Credential     *session.Credential `json:"credential,omitempty"`
	CredentialName string              `json:"credentialName,omitempty"`
}

type RequestAction struct {
	RequestCredential
	ContinueOnFail bool              `json:"continueOnFail"`
	Items          []dispatch.Params `json:"items"`
}

type RequestTrigger struct {
	RequestCredential
	emitter.TriggerConfig
	Webhook *webhook.Config `json:"webhook,omitempty"`
}

type RequestToken struct {
	Host string `json:"host"`
	// TTL is a Go duration string such as "720h"; empty means no expiry.
	TTL string `json:"ttl,omitempty"`
}
