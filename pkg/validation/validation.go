// Package validation checks request fields before they reach a session.
package validation

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var hostPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)

// ValidateURL ensures an absolute http(s) URL.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("url cannot be empty")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" {
		return errors.New("url must be valid")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("url must use http or https")
	}
	return nil
}

// ValidateTriggerID ensures an activation id as handed out by POST /triggers.
func ValidateTriggerID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("trigger id is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("trigger id must be a UUID")
	}
	return nil
}

// ValidateHostName ensures a printable token subject.
func ValidateHostName(host string) error {
	if strings.TrimSpace(host) == "" {
		return errors.New("host cannot be empty")
	}
	if !hostPattern.MatchString(host) {
		return errors.New("host may only contain letters, digits, '.', '_', ':' and '-'")
	}
	return nil
}
