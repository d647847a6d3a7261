// Package auth guards the host API: an admin secret for token minting and
// bearer JWTs for everything that opens a WhatsApp session.
package auth

import (
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/env"
)

// AdminSecretKey for admin API endpoints (/admin/*)
var AdminSecretKey string

// JWTSecretKey signs host tokens. When empty, host routes are left open.
var JWTSecretKey string

func init() {
	AdminSecretKey, _ = env.GetEnvString("ADMIN_SECRET_KEY")
	JWTSecretKey, _ = env.GetEnvString("JWT_SECRET_KEY")
}
