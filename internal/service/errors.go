package service

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per failure class. Match them with errors.Is.
var (
	ErrAlreadyRunning     = errors.New("service already running")
	ErrLaunch             = errors.New("service launch failed")
	ErrStartupFailed      = errors.New("service failed to start")
	ErrMisconfigured      = errors.New("service misconfigured")
	ErrCorruptPIDFile     = errors.New("pid file corrupt")
	ErrTerminationTimeout = errors.New("service did not terminate within grace period")
	ErrTerminate          = errors.New("service termination failed")
)

// Phase names the step of an operation that failed.
type Phase string

const (
	PhaseConfig    Phase = "config"
	PhaseAdmission Phase = "admission"
	PhaseLaunch    Phase = "launch"
	PhaseStartup   Phase = "startup"
	PhaseRecord    Phase = "record"
	PhaseStop      Phase = "stop"
)

// Error carries which service and which phase failed, the failure class and
// the underlying cause.
type Error struct {
	Service string
	Phase   Phase
	Kind    error
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("service %q: %s: %v", e.Service, e.Phase, e.Kind)
	}
	return fmt.Sprintf("service %q: %s: %v: %v", e.Service, e.Phase, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(service string, phase Phase, kind, err error) *Error {
	return &Error{Service: service, Phase: phase, Kind: kind, Err: err}
}
