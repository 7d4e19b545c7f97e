package remote

import (
	"errors"
	"fmt"
)

const errorTitle = "DeskAPI"

// ErrSessionExpired is returned after the backend rejected the credential (or
// there was none). The client has already cleared the credential and
// redirected, so callers should stop without reporting anything else.
var ErrSessionExpired = errors.New("session expired")

type ErrorType string

const (
	RequestErrorT ErrorType = "RequestError"
	ServerErrorT  ErrorType = "ServerError"
	SerDeErrorT   ErrorType = "SerDeError"
)

// Error is a non-success result of a backend call.
type Error struct {
	Type     ErrorType
	Status   int
	Message  string
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s: %s: %s (status %d)", errorTitle, e.Endpoint, e.Type, msg, e.Status)
	}
	return fmt.Sprintf("%s: %s: %s: %s", errorTitle, e.Endpoint, e.Type, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage returns the backend's human-readable error when there is one.
func UserMessage(err error, fallback string) string {
	var re *Error
	if errors.As(err, &re) && re.Type == ServerErrorT && re.Message != "" {
		return re.Message
	}
	return fallback
}
