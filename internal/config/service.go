package config

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/servicectl/internal/probe"
	"github.com/loykin/servicectl/internal/service"
)

// Service kinds.
const (
	KindGeneric = "generic"
	KindJava    = "java"
)

// ServiceConfig is one [[services]] entry as written in the file.
type ServiceConfig struct {
	Name string `toml:"name" mapstructure:"name"`
	Kind string `toml:"kind" mapstructure:"kind"`

	// generic
	Executable string   `toml:"executable" mapstructure:"executable"`
	Args       []string `toml:"args" mapstructure:"args"`

	// java
	MainClass        string   `toml:"main_class" mapstructure:"main_class"`
	JavaHome         string   `toml:"java_home" mapstructure:"java_home"`
	JVMArgs          []string `toml:"jvm_args" mapstructure:"jvm_args"`
	SystemProperties []string `toml:"system_properties" mapstructure:"system_properties"`
	DebugPort        int      `toml:"debug_port" mapstructure:"debug_port"`
	Agent            string   `toml:"agent" mapstructure:"agent"`
	AgentArgs        string   `toml:"agent_args" mapstructure:"agent_args"`
	Classpath        []string `toml:"classpath" mapstructure:"classpath"`
	ArgsFile         string   `toml:"args_file" mapstructure:"args_file"`

	WorkDir   string   `toml:"work_dir" mapstructure:"work_dir"`
	PIDFile   string   `toml:"pid_file" mapstructure:"pid_file"`
	StdoutLog string   `toml:"stdout_log" mapstructure:"stdout_log"`
	StderrLog string   `toml:"stderr_log" mapstructure:"stderr_log"`
	EnvFiles  []string `toml:"env_files" mapstructure:"env_files"`
	Env       []string `toml:"env" mapstructure:"env"`

	Port              int           `toml:"port" mapstructure:"port"`
	StartupLogMessage string        `toml:"startup_log_message" mapstructure:"startup_log_message"`
	StartTimeout      time.Duration `toml:"start_timeout" mapstructure:"start_timeout"`
	Detached          bool          `toml:"detached" mapstructure:"detached"`
}

// Resolve turns sc into a ready-to-run definition. Relative paths are taken
// against base and every unset path gets its per-service default.
func (sc ServiceConfig) Resolve(base string) (service.Definition, error) {
	if err := sc.validate(); err != nil {
		return service.Definition{}, err
	}
	name := sc.Name
	abs := func(p, def string) string { return resolvePath(base, p, def) }

	env, err := parsePairs(sc.Env)
	if err != nil {
		return service.Definition{}, &Error{Service: name, Key: "env", Reason: err.Error()}
	}
	envFiles := make([]string, 0, len(sc.EnvFiles))
	for _, f := range sc.EnvFiles {
		envFiles = append(envFiles, abs(f, ""))
	}

	stdout := abs(sc.StdoutLog, filepath.Join("logs", "stdout."+name+".log"))
	def := service.Definition{
		Name:         name,
		WorkDir:      abs(sc.WorkDir, "."),
		Stdout:       stdout,
		Stderr:       abs(sc.StderrLog, filepath.Join("logs", "stderr."+name+".log")),
		EnvFiles:     envFiles,
		Env:          env,
		PIDFile:      abs(sc.PIDFile, "service."+name+".pid"),
		StartTimeout: sc.StartTimeout,
		Detached:     sc.Detached,
		Probe: probe.Spec{
			Port:    sc.Port,
			LogFile: stdout,
			Message: sc.StartupLogMessage,
		},
	}
	if sc.Port > 0 {
		def.Probe.LogFile = ""
		def.Probe.Message = ""
	}
	if def.StartTimeout == 0 {
		def.StartTimeout = service.DefaultStartTimeout
	}

	switch sc.kind() {
	case KindJava:
		args, err := sc.javaArgs(base)
		if err != nil {
			return service.Definition{}, err
		}
		argsFile := sc.ArgsFilePath(base)
		def.Command = append([]string{JavaExecutable(sc.JavaHome), "@" + argsFile, sc.MainClass}, sc.Args...)
		def.BeforeLaunch = func() error { return args.WriteFile(argsFile) }
	default:
		def.Command = append([]string{sc.Executable}, sc.Args...)
	}
	return def, nil
}

// ArgsFilePath is where the java arguments file of sc lives.
func (sc ServiceConfig) ArgsFilePath(base string) string {
	return resolvePath(base, sc.ArgsFile, filepath.Join("build", "jvmargs."+sc.Name+".txt"))
}

// resolvePath returns p, or def when p is empty, anchored at base.
func resolvePath(base, p, def string) string {
	if p == "" {
		p = def
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

func (sc ServiceConfig) kind() string {
	if sc.Kind == "" {
		return KindGeneric
	}
	return strings.ToLower(sc.Kind)
}

func (sc ServiceConfig) validate() error {
	name := sc.Name
	if name == "" {
		return fieldError("", "name", "service requires a name")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fieldError(name, "name", "must not contain path separators")
	}
	var errs []error
	switch sc.kind() {
	case KindGeneric:
		if sc.Executable == "" {
			errs = append(errs, fieldError(name, "executable", "required for generic services"))
		}
	case KindJava:
		if sc.MainClass == "" {
			errs = append(errs, fieldError(name, "main_class", "required for java services"))
		}
		if sc.DebugPort < 0 || sc.DebugPort > 65535 {
			errs = append(errs, fieldError(name, "debug_port", "out of range: %d", sc.DebugPort))
		}
		if sc.AgentArgs != "" && sc.Agent == "" {
			errs = append(errs, fieldError(name, "agent_args", "set without agent"))
		}
	default:
		errs = append(errs, fieldError(name, "kind", "unknown kind %q", sc.Kind))
	}
	switch {
	case sc.Port < 0 || sc.Port > 65535:
		errs = append(errs, fieldError(name, "port", "out of range: %d", sc.Port))
	case sc.Port == 0 && sc.StartupLogMessage == "":
		errs = append(errs, &Error{Service: name, Reason: "either port or startup_log_message is required", Cause: probe.ErrNotConfigured})
	}
	if sc.StartTimeout < 0 {
		errs = append(errs, fieldError(name, "start_timeout", "must not be negative"))
	}
	return errors.Join(errs...)
}

// parsePairs parses KEY=VALUE entries. Keys keep their case.
func parsePairs(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.New("entry " + kv + " is not KEY=VALUE")
		}
		out[k] = v
	}
	return out, nil
}
