package router

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp"
)

func TestParseBodyLimit(t *testing.T) {
	assert.Equal(t, 8*1024*1024, parseBodyLimit(""))
	assert.Equal(t, 512*1024, parseBodyLimit("512k"))
	assert.Equal(t, 2*1024*1024, parseBodyLimit(" 2M "))
	assert.Equal(t, 1024*1024*1024, parseBodyLimit("1G"))
	assert.Equal(t, 8*1024*1024, parseBodyLimit("lots"))
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "", normalizeBaseURL(""))
	assert.Equal(t, "", normalizeBaseURL("/"))
	assert.Equal(t, "/api", normalizeBaseURL("api/"))
	assert.Equal(t, "/api/v1", normalizeBaseURL("/api/v1"))
}

func TestStatusForError(t *testing.T) {
	cause := errors.New("boom")
	assert.Equal(t, http.StatusBadRequest, StatusForError(whatsapp.ValidationError("op", cause)))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusForError(whatsapp.ConfigurationError("op", cause)))
	assert.Equal(t, http.StatusServiceUnavailable, StatusForError(whatsapp.AuthenticationError("op", cause)))
	assert.Equal(t, http.StatusBadGateway, StatusForError(whatsapp.MediaFetchError("op", cause)))
	assert.Equal(t, http.StatusBadGateway, StatusForError(whatsapp.ClientOperationError("op", cause)))
	assert.Equal(t, http.StatusNotFound, StatusForError(fiber.ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, StatusForError(cause))
}

func TestHttpErrorHandlerEnvelope(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: HttpErrorHandler})
	app.Get("/", func(c *fiber.Ctx) error {
		return whatsapp.ConfigurationError("set proxy", errors.New("unsupported scheme"))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Status)
	assert.Equal(t, "ConfigurationError", body.Kind)
	assert.Contains(t, body.Message, "unsupported scheme")
}

func TestRecoveryMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(RecoveryMiddleware())
	app.Get("/", func(c *fiber.Ctx) error { panic("kaboom") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHttpRateLimit(t *testing.T) {
	app := fiber.New()
	app.Use(HttpRateLimit(0.001, 2))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestHttpRealIP(t *testing.T) {
	app := fiber.New()
	app.Use(HttpRealIP())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(c.Locals("remote_ip").(string)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	resp, err := app.Test(req)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", string(body))
}
