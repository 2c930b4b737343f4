package env

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/magiconair/properties"
)

type Var map[string]string

// Env composes a child environment: the host environment as the base,
// .properties files folded in order on top, and explicit overrides last.
type Env struct {
	base  Var // cached from OS environment
	files Var // folded file variables
}

func New() *Env {
	return &Env{files: make(Var)}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	base := make(Var)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			base[kv[:i]] = kv[i+1:]
		}
	}
	e.base = base
}

// WithBase replaces the base environment with kvs ("K=V" form).
func (e *Env) WithBase(kvs []string) *Env {
	base := make(Var, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			base[kv[:i]] = kv[i+1:]
		}
	}
	e.base = base
	return e
}

// LoadFile folds a Java-style .properties file into the file layer. Keys
// already present from earlier files are overwritten. Values are taken
// literally; ${...} references are not expanded.
func (e *Env) LoadFile(path string) error {
	l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := l.LoadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("load environment file %s: %w", path, err)
	}
	if e.files == nil {
		e.files = make(Var)
	}
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		e.files[k] = v
	}
	return nil
}

// LoadFiles folds paths in order. The first failure aborts.
func (e *Env) LoadFiles(paths []string) error {
	for _, p := range paths {
		if err := e.LoadFile(p); err != nil {
			return err
		}
	}
	return nil
}

// Merge returns the final environment in "K=V" form, sorted by key.
// Precedence, lowest first: base, files, overrides.
func (e *Env) Merge(overrides map[string]string) []string {
	if e.base == nil {
		e.FromOS()
	}
	m := make(Var, len(e.base)+len(e.files)+len(overrides))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.files {
		m[k] = v
	}
	for k, v := range overrides {
		if k == "" {
			continue
		}
		m[k] = v
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}

// Build is the one-shot form used before a launch: OS environment, then
// files, then overrides. Any file error aborts before anything is merged.
func Build(files []string, overrides map[string]string) ([]string, error) {
	e := New()
	e.FromOS()
	if err := e.LoadFiles(files); err != nil {
		return nil, err
	}
	return e.Merge(overrides), nil
}

// Lookup returns the value of key in kvs ("K=V" form).
func Lookup(kvs []string, key string) (string, bool) {
	prefix := key + "="
	for _, kv := range kvs {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):], true
		}
	}
	return "", false
}
