package log

import (
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/env"
)

var logger = logrus.New()

func init() {
	logger.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
		DisableColors:   false,
		ForceColors:     true,
	}
	SetLevel(env.GetEnvStringOrDefault("LOG_LEVEL", "info"))
}

// SetLevel changes the global level; unknown names keep the current level.
func SetLevel(level string) {
	parsed, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return
	}
	logger.SetLevel(parsed)
}

// SetOutput redirects all log output, mostly for tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func Print(c *fiber.Ctx) *logrus.Entry {
	if c == nil {
		return logger.WithFields(logrus.Fields{})
	}

	remoteIP := c.IP()
	if v := c.Locals("remote_ip"); v != nil {
		if ip, ok := v.(string); ok && ip != "" {
			remoteIP = ip
		}
	}
	fields := logrus.Fields{
		"remote_ip": remoteIP,
		"method":    c.Method(),
		"uri":       c.OriginalURL(),
	}
	if rid := c.Locals("request_id"); rid != nil {
		fields["request_id"] = rid
	}
	return logger.WithFields(fields)
}

// Session tags entries with the session owner (an action invocation or a trigger id).
func Session(owner string) *logrus.Entry {
	return logger.WithField("session", owner)
}

// Action tags entries for one dispatcher invocation.
func Action(resource string, operation string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"resource":  resource,
		"operation": operation,
	})
}

// Trigger tags entries for one trigger activation.
func Trigger(triggerID string) *logrus.Entry {
	return logger.WithField("trigger_id", triggerID)
}

// SysErr logs an internal failure that has no caller to report to.
func SysErr(scope string, err error) {
	if err == nil {
		return
	}
	logger.WithField("scope", scope).WithError(err).Error("internal error")
}

// MaskJID hides the last digits of a phone-like identifier.
func MaskJID(jid string) string {
	user := jid
	server := ""
	if at := strings.IndexByte(jid, '@'); at >= 0 {
		user, server = jid[:at], jid[at:]
	}
	if len(user) < 4 {
		return jid
	}
	return user[0:len(user)-4] + "xxxx" + server
}
