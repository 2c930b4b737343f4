package probe

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNotConfigured is returned when neither a port nor a log message is set.
var ErrNotConfigured = errors.New("no availability check configured: set a port or a startup log message")

// Kind identifies which readiness test a Spec resolves to.
type Kind int

const (
	KindNone Kind = iota
	KindPort
	KindLog
)

func (k Kind) String() string {
	switch k {
	case KindPort:
		return "port"
	case KindLog:
		return "log"
	default:
		return "none"
	}
}

// Spec is the readiness configuration of a service. Exactly one variant is
// used: Port when it is set, otherwise LogFile+Message.
type Spec struct {
	Port    int    `mapstructure:"port" json:"port,omitempty"`
	LogFile string `mapstructure:"log_file" json:"log_file,omitempty"`
	Message string `mapstructure:"message" json:"message,omitempty"`
}

// Kind reports the variant selected by s. A configured port always wins over
// a log message.
func (s Spec) Kind() Kind {
	if s.Port != 0 {
		return KindPort
	}
	if s.Message != "" {
		return KindLog
	}
	return KindNone
}

// Validate checks that s selects a usable variant.
func (s Spec) Validate() error {
	switch s.Kind() {
	case KindPort:
		if s.Port < 1 || s.Port > 65535 {
			return fmt.Errorf("port %d out of range", s.Port)
		}
	case KindLog:
		if s.LogFile == "" {
			return errors.New("startup log message requires a log file")
		}
	default:
		return ErrNotConfigured
	}
	return nil
}

// Options tune probe behaviour. Zero values select defaults.
type Options struct {
	DialTimeout  time.Duration // per connect attempt, default 500ms
	TailInterval time.Duration // log re-read fallback when no fs event arrives, default 250ms
	// FromStart makes the log variant read the file from its beginning on
	// the first poll instead of from its end at that moment. Set it when the
	// file was removed before the launch, so all content is from this run.
	FromStart bool
	Logger    *slog.Logger
}

const (
	DefaultDialTimeout  = 500 * time.Millisecond
	DefaultTailInterval = 250 * time.Millisecond
)

// Probe answers whether a launched service is ready. It is the single poll
// function over both variants.
type Probe struct {
	kind Kind
	spec Spec
	opts Options
	tail *tailer
}

// New builds a probe for spec. It performs no I/O; the log variant only
// starts reading on the first IsRunning call.
func New(spec Spec, opts Options) (*Probe, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.TailInterval <= 0 {
		opts.TailInterval = DefaultTailInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	p := &Probe{kind: spec.Kind(), spec: spec, opts: opts}
	if p.kind == KindLog {
		p.tail = newTailer(spec.LogFile, spec.Message, opts.TailInterval, opts.FromStart, opts.Logger)
	}
	return p, nil
}

// Kind returns the resolved variant.
func (p *Probe) Kind() Kind { return p.kind }

// IsRunning reports readiness. It never blocks longer than one dial timeout.
func (p *Probe) IsRunning() bool {
	switch p.kind {
	case KindPort:
		return portOpen(p.spec.Port, p.opts.DialTimeout)
	case KindLog:
		p.tail.start()
		return p.tail.found.Load()
	}
	return false
}

// Describe returns a human-readable form of the check.
func (p *Probe) Describe() string {
	if p.kind == KindPort {
		return fmt.Sprintf("port:%d", p.spec.Port)
	}
	return fmt.Sprintf("log:%s contains %q", p.spec.LogFile, p.spec.Message)
}

// Close releases the log tailer if one was started. Safe to call more than once.
func (p *Probe) Close() error {
	if p.tail != nil {
		p.tail.stop()
	}
	return nil
}
