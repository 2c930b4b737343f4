package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// JavaArgs is the content of a JVM arguments file, the file passed to java
// as @file.
type JavaArgs struct {
	Agent            string
	AgentArgs        string
	DebugPort        int
	JVMArgs          []string
	Classpath        []string
	SystemProperties map[string]string
}

func (sc ServiceConfig) javaArgs(base string) (JavaArgs, error) {
	props, err := parsePairs(sc.SystemProperties)
	if err != nil {
		return JavaArgs{}, &Error{Service: sc.Name, Key: "system_properties", Reason: err.Error()}
	}
	ja := JavaArgs{
		AgentArgs:        sc.AgentArgs,
		DebugPort:        sc.DebugPort,
		JVMArgs:          sc.JVMArgs,
		SystemProperties: props,
	}
	if sc.Agent != "" {
		ja.Agent = resolvePath(base, sc.Agent, "")
	}
	seen := make(map[string]bool, len(sc.Classpath))
	for _, entry := range sc.Classpath {
		p := resolvePath(base, entry, "")
		if !seen[p] {
			seen[p] = true
			ja.Classpath = append(ja.Classpath, p)
		}
	}
	return ja, nil
}

// String renders the arguments space separated: agent, debugger, JVM
// arguments, class path, then system properties sorted by key.
func (a JavaArgs) String() string {
	var parts []string
	if a.Agent != "" {
		agent := "-javaagent:" + a.Agent
		if a.AgentArgs != "" {
			agent += "=" + a.AgentArgs
		}
		parts = append(parts, agent)
	}
	if a.DebugPort > 0 {
		parts = append(parts, fmt.Sprintf("-agentlib:jdwp=transport=dt_socket,server=y,suspend=n,address=*:%d", a.DebugPort))
	}
	parts = append(parts, a.JVMArgs...)
	if len(a.Classpath) > 0 {
		parts = append(parts, "-cp "+strings.Join(a.Classpath, string(os.PathListSeparator)))
	}
	keys := make([]string, 0, len(a.SystemProperties))
	for k := range a.SystemProperties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("-D%s=%s", k, a.SystemProperties[k]))
	}
	return strings.Join(parts, " ")
}

// WriteFile writes the arguments file, creating its directory.
func (a JavaArgs) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create args file directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(a.String()), 0o600); err != nil {
		return fmt.Errorf("write args file: %w", err)
	}
	return nil
}

// WriteArgsFile writes the arguments file of the java service sc and returns
// its path.
func WriteArgsFile(sc ServiceConfig, base string) (string, error) {
	if sc.kind() != KindJava {
		return "", fieldError(sc.Name, "kind", "args file only exists for java services")
	}
	if err := sc.validate(); err != nil {
		return "", err
	}
	args, err := sc.javaArgs(base)
	if err != nil {
		return "", err
	}
	path := sc.ArgsFilePath(base)
	return path, args.WriteFile(path)
}

// JavaExecutable locates java: javaHome, then JAVA_HOME, then PATH. It
// falls back to plain "java" and lets the launch report a missing binary.
func JavaExecutable(javaHome string) string {
	bin := "java"
	if runtime.GOOS == "windows" {
		bin = "java.exe"
	}
	for _, home := range []string{javaHome, os.Getenv("JAVA_HOME")} {
		if home == "" {
			continue
		}
		p := filepath.Join(home, "bin", bin)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if p, err := exec.LookPath(bin); err == nil {
		return p
	}
	return bin
}
