package session

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp"
)

// Credential is what the host stores for one WhatsApp account. It is read for
// every invocation and never written back.
type Credential struct {
	SessionData string `json:"sessionData,omitempty"`
	Headless    bool   `json:"headless"`
	ProxyServer string `json:"proxyServer,omitempty"`
}

// ParseSessionData decodes the opaque session blob. An empty blob yields nil.
func ParseSessionData(blob string) (*whatsapp.SessionData, error) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return nil, nil
	}

	var data whatsapp.SessionData
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		return nil, err
	}
	if data.Driver == "" && data.DSN == "" && data.JID == "" {
		return nil, errors.New("session data names no datastore or device")
	}
	if data.DSN != "" && data.Driver == "" {
		return nil, errors.New("session data has a dsn but no driver")
	}
	return &data, nil
}

// EncodeSessionData renders a session location as the blob an operator stores.
func EncodeSessionData(data *whatsapp.SessionData) string {
	if data == nil {
		return ""
	}
	out, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(out)
}
