package router

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp"
)

// StatusForError maps the WhatsApp error kinds onto HTTP status codes.
func StatusForError(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, whatsapp.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, whatsapp.ErrConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, whatsapp.ErrAuthentication):
		return http.StatusServiceUnavailable
	case errors.Is(err, whatsapp.ErrMediaFetch),
		errors.Is(err, whatsapp.ErrClientOperation),
		errors.Is(err, whatsapp.ErrMediaDownload):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func HttpErrorHandler(c *fiber.Ctx, err error) error {
	message := err.Error()
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		message = fiberErr.Message
	}
	return ResponseError(c, StatusForError(err), whatsapp.KindOf(err), message)
}
