package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/loykin/servicectl/internal/service"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "servicectl.toml"

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	BaseDir  string          `toml:"base_dir" mapstructure:"base_dir"`
	Log      LogConfig       `toml:"log" mapstructure:"log"`
	Metrics  MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
	History  HistoryConfig   `toml:"history" mapstructure:"history"`
	Services []ServiceConfig `toml:"services" mapstructure:"services"`
}

// LogConfig configures the host's own log, not the services' output.
type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type MetricsConfig struct {
	Textfile string `toml:"textfile" mapstructure:"textfile"`
}

type HistoryConfig struct {
	DSNs []string `toml:"dsns" mapstructure:"dsns"`
}

// Load reads a TOML file. Global keys may be overridden through SERVICECTL_*
// environment variables, e.g. SERVICECTL_LOG_LEVEL. A relative base_dir is
// taken relative to the file; an empty one is the file's directory.
func Load(path string) (*FileConfig, error) {
	if path == "" {
		path = DefaultFile
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("SERVICECTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.textfile", "")
	if err := v.ReadInConfig(); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("read %s", path), Cause: err}
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("decode %s", path), Cause: err}
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, &Error{Key: "base_dir", Reason: "resolve config directory", Cause: err}
	}
	switch {
	case fc.BaseDir == "":
		fc.BaseDir = dir
	case !filepath.IsAbs(fc.BaseDir):
		fc.BaseDir = filepath.Join(dir, fc.BaseDir)
	}
	if fc.Log.File != "" {
		fc.Log.File = resolvePath(fc.BaseDir, fc.Log.File, "")
	}
	if fc.Metrics.Textfile != "" {
		fc.Metrics.Textfile = resolvePath(fc.BaseDir, fc.Metrics.Textfile, "")
	}
	return &fc, nil
}

// Service returns the service named name.
func (fc *FileConfig) Service(name string) (ServiceConfig, bool) {
	for _, sc := range fc.Services {
		if sc.Name == name {
			return sc, true
		}
	}
	return ServiceConfig{}, false
}

// Names lists the configured services in file order.
func (fc *FileConfig) Names() []string {
	out := make([]string, 0, len(fc.Services))
	for _, sc := range fc.Services {
		out = append(out, sc.Name)
	}
	return out
}

// Definitions resolves every service. Duplicate names and any invalid
// service are reported together.
func (fc *FileConfig) Definitions() ([]service.Definition, error) {
	seen := make(map[string]bool, len(fc.Services))
	defs := make([]service.Definition, 0, len(fc.Services))
	var errs []error
	for i, sc := range fc.Services {
		if sc.Name != "" && seen[sc.Name] {
			errs = append(errs, fieldError(sc.Name, "name", "duplicate service name"))
			continue
		}
		seen[sc.Name] = true
		def, err := sc.Resolve(fc.BaseDir)
		if err != nil {
			if sc.Name == "" {
				err = fmt.Errorf("services[%d]: %w", i, err)
			}
			errs = append(errs, err)
			continue
		}
		defs = append(defs, def)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return defs, nil
}

// Definition resolves the service named name.
func (fc *FileConfig) Definition(name string) (service.Definition, error) {
	sc, ok := fc.Service(name)
	if !ok {
		return service.Definition{}, &Error{Service: name, Reason: "no such service"}
	}
	return sc.Resolve(fc.BaseDir)
}
