package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/log"
)

type Response struct {
	Status  bool        `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Kind    string      `json:"kind,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func logSuccess(c *fiber.Ctx, code int, message string) {
	statusMessage := http.StatusText(code)

	if statusMessage == message || c.OriginalURL() == BaseURL {
		log.Print(c).Info(fmt.Sprintf("%d %v", code, statusMessage))
	} else {
		log.Print(c).Info(fmt.Sprintf("%d %v", code, message))
	}
}

func logError(c *fiber.Ctx, code int, message string) {
	entry := log.Print(c)
	statusMessage := http.StatusText(code)
	if statusMessage != message {
		statusMessage = message
	}
	if code >= http.StatusInternalServerError {
		entry.Error(fmt.Sprintf("%d %v", code, statusMessage))
	} else {
		entry.Warn(fmt.Sprintf("%d %v", code, statusMessage))
	}
}

func success(c *fiber.Ctx, code int, message string, data interface{}) error {
	if strings.TrimSpace(message) == "" {
		message = http.StatusText(code)
	}
	logSuccess(c, code, message)
	return c.Status(code).JSON(Response{
		Status:  true,
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// ResponseError writes the failure envelope. kind is the error taxonomy name
// and may be empty.
func ResponseError(c *fiber.Ctx, code int, kind string, message string) error {
	return ResponseErrorWithData(c, code, kind, message, nil)
}

func ResponseErrorWithData(c *fiber.Ctx, code int, kind string, message string, data interface{}) error {
	if strings.TrimSpace(message) == "" {
		message = http.StatusText(code)
	}
	logError(c, code, message)
	return c.Status(code).JSON(Response{
		Status:  false,
		Code:    code,
		Message: message,
		Kind:    kind,
		Data:    data,
		Error:   message,
	})
}

func ResponseSuccess(c *fiber.Ctx, message string) error {
	return success(c, http.StatusOK, message, nil)
}

func ResponseSuccessWithData(c *fiber.Ctx, message string, data interface{}) error {
	return success(c, http.StatusOK, message, data)
}

func ResponseCreatedWithData(c *fiber.Ctx, message string, data interface{}) error {
	return success(c, http.StatusCreated, message, data)
}

func ResponseNoContent(c *fiber.Ctx) error {
	return c.SendStatus(http.StatusNoContent)
}

func ResponseNotFound(c *fiber.Ctx, message string) error {
	return ResponseError(c, http.StatusNotFound, "", message)
}

func ResponseUnauthorized(c *fiber.Ctx, message string) error {
	return ResponseError(c, http.StatusUnauthorized, "", message)
}

func ResponseBadRequest(c *fiber.Ctx, message string) error {
	return ResponseError(c, http.StatusBadRequest, "", message)
}

func ResponseConflict(c *fiber.Ctx, message string) error {
	return ResponseError(c, http.StatusConflict, "", message)
}

func ResponseTooManyRequests(c *fiber.Ctx, message string) error {
	return ResponseError(c, http.StatusTooManyRequests, "", message)
}

func ResponseInternalError(c *fiber.Ctx, message string) error {
	return ResponseError(c, http.StatusInternalServerError, "", message)
}
