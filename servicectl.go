package servicectl

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/servicectl/internal/config"
	"github.com/loykin/servicectl/internal/history"
	"github.com/loykin/servicectl/internal/history/factory"
	"github.com/loykin/servicectl/internal/metrics"
	"github.com/loykin/servicectl/internal/probe"
	"github.com/loykin/servicectl/internal/process"
	"github.com/loykin/servicectl/internal/service"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Definition = service.Definition

type Controller = service.Controller

type Options = service.Options

type Status = service.Status

type ProbeSpec = probe.Spec

type Config = config.FileConfig

type ServiceConfig = config.ServiceConfig

type HistorySink = history.Sink

type HistoryEvent = history.Event

type Registry = process.Registry

// Failure classes returned by Controller operations. Match with errors.Is.
var (
	ErrAlreadyRunning     = service.ErrAlreadyRunning
	ErrLaunch             = service.ErrLaunch
	ErrStartupFailed      = service.ErrStartupFailed
	ErrMisconfigured      = service.ErrMisconfigured
	ErrCorruptPIDFile     = service.ErrCorruptPIDFile
	ErrTerminationTimeout = service.ErrTerminationTimeout
	ErrTerminate          = service.ErrTerminate
)

// New returns a controller. Zero options select OS processes, a fresh
// registry and the default poll interval and grace period.
func New(opts Options) *Controller { return service.New(opts) }

func NewRegistry() *Registry { return process.NewRegistry() }

func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// NewHistorySink opens a sink for a sqlite://, postgres:// or clickhouse:// DSN.
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

func CloseHistorySinks(sinks []HistorySink) error { return factory.CloseAll(sinks) }

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// WriteMetricsTextfile writes the default gatherer in the node_exporter
// textfile format.
func WriteMetricsTextfile(path string) error { return metrics.WriteTextfile(path) }
