package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/loykin/servicectl"
	"github.com/loykin/servicectl/internal/logger"
)

// session is everything one invocation needs: the parsed file, the host
// logger, history sinks and the controller wired to them.
type session struct {
	cfg   *servicectl.Config
	log   *slog.Logger
	ctrl  *servicectl.Controller
	sinks []servicectl.HistorySink

	logCloser io.Closer
}

func openSession(g *GlobalFlags, errOut io.Writer, opts servicectl.Options) (*session, error) {
	cfg, err := servicectl.LoadConfig(g.ConfigPath)
	if err != nil {
		return nil, err
	}
	lc := logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Color:  cfg.Log.Color,
		File: logger.FileConfig{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		},
	}
	if g.LogLevel != "" {
		lc.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		lc.Format = g.LogFormat
	}
	log, logCloser, err := logger.New(lc, errOut)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, log: log, logCloser: logCloser}
	for _, dsn := range cfg.History.DSNs {
		sink, err := servicectl.NewHistorySink(dsn)
		if err != nil {
			_ = s.close()
			return nil, fmt.Errorf("history sink: %w", err)
		}
		s.sinks = append(s.sinks, sink)
	}
	if err := servicectl.RegisterMetricsDefault(); err != nil {
		_ = s.close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	opts.Logger = log
	opts.Sinks = s.sinks
	s.ctrl = servicectl.New(opts)
	return s, nil
}

// definitions resolves names, or every service in file order when names is
// empty.
func (s *session) definitions(names []string) ([]servicectl.Definition, error) {
	if len(names) == 0 {
		return s.cfg.Definitions()
	}
	defs := make([]servicectl.Definition, 0, len(names))
	for _, n := range names {
		d, err := s.cfg.Definition(n)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// close flushes metrics and releases sinks and the log file.
func (s *session) close() error {
	var errs []error
	if s.cfg != nil && s.cfg.Metrics.Textfile != "" {
		if err := servicectl.WriteMetricsTextfile(s.cfg.Metrics.Textfile); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if err := servicectl.CloseHistorySinks(s.sinks); err != nil {
		errs = append(errs, err)
	}
	if s.logCloser != nil {
		if err := s.logCloser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
