package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProps(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestPrecedenceFilesThenOverrides(t *testing.T) {
	dir := t.TempDir()
	f1 := writeProps(t, dir, "a.properties", "K=one\nONLY_A=a\n")
	f2 := writeProps(t, dir, "b.properties", "# comment\nK = two\nONLY_B: b\n")

	e := New().WithBase([]string{"K=base", "BASE=1"})
	require.NoError(t, e.LoadFiles([]string{f1, f2}))

	out := e.Merge(nil)
	v, _ := Lookup(out, "K")
	assert.Equal(t, "two", v, "later file wins")
	v, _ = Lookup(out, "ONLY_A")
	assert.Equal(t, "a", v)
	v, _ = Lookup(out, "ONLY_B")
	assert.Equal(t, "b", v)
	v, _ = Lookup(out, "BASE")
	assert.Equal(t, "1", v)

	out = e.Merge(map[string]string{"K": "override", "": "skipped"})
	v, _ = Lookup(out, "K")
	assert.Equal(t, "override", v, "override wins over files")
	for _, kv := range out {
		assert.NotEqual(t, byte('='), kv[0])
	}
}

func TestValuesAreLiteral(t *testing.T) {
	dir := t.TempDir()
	f := writeProps(t, dir, "x.properties", "HOME_REF=${HOME}/x\n")
	e := New().WithBase(nil)
	require.NoError(t, e.LoadFile(f))
	v, ok := Lookup(e.Merge(nil), "HOME_REF")
	require.True(t, ok)
	assert.Equal(t, "${HOME}/x", v)
}

func TestMissingFileAborts(t *testing.T) {
	_, err := Build([]string{filepath.Join(t.TempDir(), "missing.properties")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.properties")
}

func TestBuildStartsFromOS(t *testing.T) {
	t.Setenv("SERVICECTL_ENV_TEST", "from-os")
	out, err := Build(nil, map[string]string{"EXTRA": "1"})
	require.NoError(t, err)
	v, ok := Lookup(out, "SERVICECTL_ENV_TEST")
	assert.True(t, ok)
	assert.Equal(t, "from-os", v)
	v, _ = Lookup(out, "EXTRA")
	assert.Equal(t, "1", v)
}

func TestMergeIsSorted(t *testing.T) {
	out := New().WithBase([]string{"B=2", "A=1"}).Merge(map[string]string{"C": "3"})
	assert.Equal(t, []string{"A=1", "B=2", "C=3"}, out)
}
