package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/servicectl/internal/probe"
	"github.com/loykin/servicectl/internal/service"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "servicectl.toml")
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	return file
}

func TestLoadDefaults(t *testing.T) {
	file := writeConfig(t, `
[[services]]
name = "api"
executable = "/usr/bin/api"
args = ["--listen", ":8080"]
port = 8080
`)
	fc, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	base := filepath.Dir(file)
	if fc.BaseDir != base {
		t.Fatalf("base dir = %q, want %q", fc.BaseDir, base)
	}
	if fc.Log.Level != "info" || fc.Log.Format != "text" {
		t.Fatalf("log defaults not applied: %+v", fc.Log)
	}

	defs, err := fc.Definitions()
	if err != nil {
		t.Fatalf("definitions: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	d := defs[0]
	want := []string{"/usr/bin/api", "--listen", ":8080"}
	if strings.Join(d.Command, " ") != strings.Join(want, " ") {
		t.Fatalf("command = %v", d.Command)
	}
	if d.PIDFile != filepath.Join(base, "service.api.pid") {
		t.Fatalf("pid file = %q", d.PIDFile)
	}
	if d.Stdout != filepath.Join(base, "logs", "stdout.api.log") || d.Stderr != filepath.Join(base, "logs", "stderr.api.log") {
		t.Fatalf("log paths = %q %q", d.Stdout, d.Stderr)
	}
	if d.WorkDir != base {
		t.Fatalf("work dir = %q", d.WorkDir)
	}
	if d.StartTimeout != service.DefaultStartTimeout {
		t.Fatalf("start timeout = %s", d.StartTimeout)
	}
	if d.Probe.Kind() != probe.KindPort || d.Probe.Port != 8080 {
		t.Fatalf("probe = %+v", d.Probe)
	}
}

func TestLoadExplicitPaths(t *testing.T) {
	file := writeConfig(t, `
base_dir = "project"

[[services]]
name = "worker"
executable = "worker"
work_dir = "/srv/worker"
pid_file = "run/worker.pid"
stdout_log = "/var/log/worker.out"
stderr_log = "/var/log/worker.out"
env_files = ["conf/worker.properties"]
env = ["MODE=prod", "Path_Like=a=b"]
startup_log_message = "Worker started"
start_timeout = "90s"
`)
	fc, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	base := filepath.Join(filepath.Dir(file), "project")
	if fc.BaseDir != base {
		t.Fatalf("base dir = %q", fc.BaseDir)
	}
	d, err := fc.Definition("worker")
	if err != nil {
		t.Fatalf("definition: %v", err)
	}
	if d.WorkDir != "/srv/worker" || d.PIDFile != filepath.Join(base, "run", "worker.pid") {
		t.Fatalf("paths not resolved: %+v", d)
	}
	if d.EnvFiles[0] != filepath.Join(base, "conf", "worker.properties") {
		t.Fatalf("env file = %q", d.EnvFiles[0])
	}
	if d.Env["MODE"] != "prod" || d.Env["Path_Like"] != "a=b" {
		t.Fatalf("env = %v", d.Env)
	}
	if d.StartTimeout != 90*time.Second {
		t.Fatalf("start timeout = %s", d.StartTimeout)
	}
	if d.Probe.Kind() != probe.KindLog || d.Probe.LogFile != "/var/log/worker.out" || d.Probe.Message != "Worker started" {
		t.Fatalf("log probe must watch stdout: %+v", d.Probe)
	}
}

func TestPortWinsOverLogMessage(t *testing.T) {
	sc := ServiceConfig{Name: "both", Executable: "x", Port: 9000, StartupLogMessage: "up"}
	d, err := sc.Resolve(t.TempDir())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if d.Probe.Kind() != probe.KindPort || d.Probe.Message != "" {
		t.Fatalf("probe = %+v", d.Probe)
	}
}

func TestResolveValidation(t *testing.T) {
	cases := []struct {
		name string
		sc   ServiceConfig
		key  string
	}{
		{"missing name", ServiceConfig{Executable: "x", Port: 1}, "name"},
		{"name with separator", ServiceConfig{Name: "a/b", Executable: "x", Port: 1}, "name"},
		{"missing executable", ServiceConfig{Name: "a", Port: 1}, "executable"},
		{"java without main class", ServiceConfig{Name: "a", Kind: "java", Port: 1}, "main_class"},
		{"unknown kind", ServiceConfig{Name: "a", Kind: "python", Port: 1}, "kind"},
		{"port out of range", ServiceConfig{Name: "a", Executable: "x", Port: 70000}, "port"},
		{"negative timeout", ServiceConfig{Name: "a", Executable: "x", Port: 1, StartTimeout: -time.Second}, "start_timeout"},
		{"agent args without agent", ServiceConfig{Name: "a", Kind: "java", MainClass: "M", Port: 1, AgentArgs: "x"}, "agent_args"},
		{"bad env entry", ServiceConfig{Name: "a", Executable: "x", Port: 1, Env: []string{"NOVALUE"}}, "env"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.sc.Resolve(t.TempDir())
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, service.ErrMisconfigured) {
				t.Fatalf("expected ErrMisconfigured, got %v", err)
			}
			var ce *Error
			if !errors.As(err, &ce) || ce.Key != tc.key {
				t.Fatalf("expected key %q, got %v", tc.key, err)
			}
		})
	}
}

func TestResolveWithoutProbe(t *testing.T) {
	sc := ServiceConfig{Name: "silent", Executable: "x"}
	_, err := sc.Resolve(t.TempDir())
	if !errors.Is(err, probe.ErrNotConfigured) {
		t.Fatalf("expected probe.ErrNotConfigured, got %v", err)
	}
	if !strings.Contains(err.Error(), "services[silent]") {
		t.Fatalf("error must name the service: %v", err)
	}
}

func TestDefinitionsDuplicateNames(t *testing.T) {
	file := writeConfig(t, `
[[services]]
name = "dup"
executable = "a"
port = 1

[[services]]
name = "dup"
executable = "b"
port = 2
`)
	fc, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := fc.Definitions(); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestDefinitionUnknownService(t *testing.T) {
	fc := &FileConfig{BaseDir: t.TempDir()}
	if _, err := fc.Definition("ghost"); !errors.Is(err, service.ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *Error, got %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	file := writeConfig(t, `
[log]
level = "info"
`)
	t.Setenv("SERVICECTL_LOG_LEVEL", "debug")
	fc, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.Log.Level != "debug" {
		t.Fatalf("env override not applied: %q", fc.Log.Level)
	}
}

func TestLoadHistoryAndMetrics(t *testing.T) {
	file := writeConfig(t, `
[metrics]
textfile = "/var/lib/node_exporter/servicectl.prom"

[history]
dsns = ["sqlite:///tmp/history.db", "clickhouse://localhost:9000?table=events"]
`)
	fc, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.Metrics.Textfile != "/var/lib/node_exporter/servicectl.prom" {
		t.Fatalf("metrics = %+v", fc.Metrics)
	}
	if len(fc.History.DSNs) != 2 {
		t.Fatalf("history = %+v", fc.History)
	}
	if names := fc.Names(); len(names) != 0 {
		t.Fatalf("names = %v", names)
	}
}
