package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withSecrets(t *testing.T, admin string, jwtSecret string) {
	t.Helper()
	prevAdmin, prevJWT := AdminSecretKey, JWTSecretKey
	AdminSecretKey, JWTSecretKey = admin, jwtSecret
	t.Cleanup(func() { AdminSecretKey, JWTSecretKey = prevAdmin, prevJWT })
}

func TestHostTokenRoundTrip(t *testing.T) {
	withSecrets(t, "", "0123456789abcdef0123456789abcdef")

	token, err := GenerateHostToken("workflow-1", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateHostToken(token)
	require.NoError(t, err)
	assert.Equal(t, "workflow-1", claims.Host)
	assert.NotNil(t, claims.ExpiresAt)
}

func TestHostTokenRejectsOtherSecret(t *testing.T) {
	withSecrets(t, "", "0123456789abcdef0123456789abcdef")

	token, err := GenerateHostToken("workflow-1", 0)
	require.NoError(t, err)

	JWTSecretKey = "another-secret-another-secret-xx"
	_, err = ValidateHostToken(token)
	assert.Error(t, err)
}

func TestGenerateHostTokenRequiresSecret(t *testing.T) {
	withSecrets(t, "", "")
	_, err := GenerateHostToken("workflow-1", 0)
	assert.ErrorIs(t, err, ErrSecretNotConfigured)
}

func newApp() *fiber.App {
	app := fiber.New()
	app.Get("/admin", AdminAuth(), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })
	app.Get("/host", HostAuth(), func(c *fiber.Ctx) error { return c.SendString(c.Locals("host").(string)) })
	return app
}

func status(t *testing.T, app *fiber.App, path string, header string, value string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestAdminAuth(t *testing.T) {
	withSecrets(t, "admin-secret", "")
	app := newApp()

	assert.Equal(t, http.StatusUnauthorized, status(t, app, "/admin", "", ""))
	assert.Equal(t, http.StatusUnauthorized, status(t, app, "/admin", "X-Admin-Secret", "wrong"))
	assert.Equal(t, http.StatusOK, status(t, app, "/admin", "X-Admin-Secret", "admin-secret"))
}

func TestHostAuth(t *testing.T) {
	withSecrets(t, "", "0123456789abcdef0123456789abcdef")
	app := newApp()

	token, err := GenerateHostToken("workflow-1", 0)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, status(t, app, "/host", "", ""))
	assert.Equal(t, http.StatusUnauthorized, status(t, app, "/host", "Authorization", "Basic abc"))
	assert.Equal(t, http.StatusUnauthorized, status(t, app, "/host", "Authorization", "Bearer nope"))
	assert.Equal(t, http.StatusOK, status(t, app, "/host", "Authorization", "Bearer "+token))
}
