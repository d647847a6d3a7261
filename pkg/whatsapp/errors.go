package whatsapp

import (
	"errors"
)

var (
	// ErrConfiguration marks an unusable credential or client option.
	ErrConfiguration = errors.New("whatsapp configuration error")
	// ErrAuthentication marks a pairing that never completed or a session that was rejected.
	ErrAuthentication = errors.New("whatsapp authentication error")
	// ErrMediaFetch marks an unreachable or unsupported outbound media URL.
	ErrMediaFetch = errors.New("whatsapp media fetch error")
	// ErrClientOperation marks a failed send or fetch against the client.
	ErrClientOperation = errors.New("whatsapp client operation error")
	// ErrMediaDownload marks a failed inbound media download.
	ErrMediaDownload = errors.New("whatsapp media download error")
	// ErrValidation marks a missing or malformed per-item parameter.
	ErrValidation = errors.New("whatsapp validation error")

	ErrClientDestroyed = errors.New("WhatsApp Client is Destroyed")
	ErrNotLoggedIn     = errors.New("WhatsApp Client is not Logged In")
	ErrNotConnected    = errors.New("WhatsApp Client is not Connected")
)

var kindNames = map[error]string{
	ErrConfiguration:   "ConfigurationError",
	ErrAuthentication:  "AuthenticationError",
	ErrMediaFetch:      "MediaFetchError",
	ErrClientOperation: "ClientOperationError",
	ErrMediaDownload:   "MediaDownloadError",
	ErrValidation:      "ValidationError",
}

// Error attaches one of the kind sentinels and the failing operation to a cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) && typed.Kind == kind {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func ConfigurationError(op string, err error) error  { return wrap(ErrConfiguration, op, err) }
func AuthenticationError(op string, err error) error { return wrap(ErrAuthentication, op, err) }
func MediaFetchError(op string, err error) error     { return wrap(ErrMediaFetch, op, err) }
func ClientOperationError(op string, err error) error {
	return wrap(ErrClientOperation, op, err)
}
func MediaDownloadError(op string, err error) error { return wrap(ErrMediaDownload, op, err) }
func ValidationError(op string, err error) error    { return wrap(ErrValidation, op, err) }

// KindOf returns the taxonomy name of err, or "" when it carries no kind.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) && typed.Kind != nil {
		return kindNames[typed.Kind]
	}
	for kind, name := range kindNames {
		if errors.Is(err, kind) {
			return name
		}
	}
	return ""
}
