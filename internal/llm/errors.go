package llm

import (
	"errors"
	"fmt"
)

// UnavailableMessage is the only failure text shown to end users.
const UnavailableMessage = "All AI services are currently unavailable. Please try again later."

var (
	// ErrEmptyImage is returned by RouteVision when no image bytes are given
	ErrEmptyImage = errors.New("image payload is empty")
)

// TransportError is a network failure or non-2xx response of a single attempt
type TransportError struct {
	Provider   string
	Model      string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	case e.StatusCode != 0:
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	default:
		return "transport failure"
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ExhaustedFallbackError means every candidate model of a provider failed
type ExhaustedFallbackError struct {
	Provider string
	Attempts AttemptLog
}

func (e *ExhaustedFallbackError) Error() string {
	last, ok := e.Attempts.Last()
	if !ok {
		return fmt.Sprintf("all %s models failed: no candidate models", e.Provider)
	}
	return fmt.Sprintf("all %s models failed. last error: %v", e.Provider, last.Err)
}

func (e *ExhaustedFallbackError) Unwrap() error {
	if last, ok := e.Attempts.Last(); ok {
		return last.Err
	}
	return nil
}

// ProviderUnavailableError is returned when primary and secondary both
// failed. Its message never names a provider; the attempts are kept for logs.
type ProviderUnavailableError struct {
	Attempts AttemptLog
}

func (e *ProviderUnavailableError) Error() string {
	return UnavailableMessage
}

// ConfigurationError reports a missing credential or endpoint, detected
// before any network call.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %s", e.Field, e.Reason)
}

// PublicMessage maps an error from this package to text that is safe to
// show an end user.
func PublicMessage(err error) string {
	var cfgErr *ConfigurationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return "AI service is not configured."
	case errors.Is(err, ErrEmptyImage):
		return "No image provided."
	default:
		return UnavailableMessage
	}
}
