package process

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeProc struct {
	pid     int
	alive   bool
	killed  int
	killErr error
}

func (f *fakeProc) Pid() int    { return f.pid }
func (f *fakeProc) Alive() bool { return f.alive }
func (f *fakeProc) Kill() error {
	f.killed++
	if f.killErr == nil {
		f.alive = false
	}
	return f.killErr
}

func TestRegistryTerminateAll(t *testing.T) {
	r := NewRegistry()
	a := &fakeProc{pid: 10, alive: true}
	b := &fakeProc{pid: 11, alive: true, killErr: errors.New("denied")}
	c := &fakeProc{pid: 12, alive: false}
	var cleaned []string
	r.Track("a", a, func() { cleaned = append(cleaned, "a") })
	r.Track("b", b, func() { cleaned = append(cleaned, "b") })
	r.Track("c", c, nil)
	assert.Equal(t, []string{"a", "b", "c"}, r.Names())

	n := r.TerminateAll(nil)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, a.killed)
	assert.Equal(t, 1, b.killed)
	assert.Equal(t, 0, c.killed, "exited processes are not signalled")
	assert.ElementsMatch(t, []string{"a", "b"}, cleaned)
	assert.Empty(t, r.Names())
	assert.Equal(t, 0, r.TerminateAll(nil))
}

func TestRegistryRelease(t *testing.T) {
	r := NewRegistry()
	p := &fakeProc{pid: 7, alive: true}
	r.Track("svc", p, nil)
	r.Release(7)
	assert.Equal(t, 0, r.TerminateAll(nil))
	assert.Equal(t, 0, p.killed)
}
