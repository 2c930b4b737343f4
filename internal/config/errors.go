package config

import (
	"fmt"

	"github.com/loykin/servicectl/internal/service"
)

// Error reports a configuration problem for one service key.
type Error struct {
	Service string // empty for file-level problems
	Key     string
	Reason  string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Service != "" && e.Key != "":
		return fmt.Sprintf("config error at services[%s].%s: %s", e.Service, e.Key, e.Reason)
	case e.Service != "":
		return fmt.Sprintf("config error at services[%s]: %s", e.Service, e.Reason)
	case e.Key != "":
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap lets errors.Is match service.ErrMisconfigured and the cause.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{service.ErrMisconfigured}
	}
	return []error{service.ErrMisconfigured, e.Cause}
}

func fieldError(svc, key, format string, args ...any) *Error {
	return &Error{Service: svc, Key: key, Reason: fmt.Sprintf(format, args...)}
}
