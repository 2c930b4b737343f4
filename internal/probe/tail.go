package probe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// tailer follows appends to a log file and flips found once a line contains
// message. found only ever moves false -> true.
type tailer struct {
	path      string
	message   []byte
	interval  time.Duration
	fromStart bool
	logger    *slog.Logger

	found atomic.Bool

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}

	// owned by the run goroutine
	offset  int64
	pending []byte
}

func newTailer(path, message string, interval time.Duration, fromStart bool, logger *slog.Logger) *tailer {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &tailer{path: path, message: []byte(message), interval: interval, fromStart: fromStart, logger: logger}
}

// start begins following the file from its current end, or from its
// beginning with fromStart. A file that does not exist yet is followed from
// offset zero once it appears.
func (t *tailer) start() {
	t.startOnce.Do(func() {
		if info, err := os.Stat(t.path); err == nil && !t.fromStart {
			t.offset = info.Size()
		}
		ctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		t.done = make(chan struct{})
		go t.run(ctx)
	})
}

// stop cancels the follower and waits for it to exit.
func (t *tailer) stop() {
	t.stopOnce.Do(func() {
		// prevent a late start after Close
		t.startOnce.Do(func() {})
		if t.cancel == nil {
			return
		}
		t.cancel()
		<-t.done
	})
}

func (t *tailer) run(ctx context.Context) {
	defer close(t.done)

	var events <-chan fsnotify.Event
	var errs <-chan error
	w, err := fsnotify.NewWatcher()
	if err == nil {
		defer func() { _ = w.Close() }()
		if err := w.Add(filepath.Dir(t.path)); err != nil {
			t.logger.Debug("log probe falls back to polling", "path", t.path, "error", err)
		} else {
			events, errs = w.Events, w.Errors
		}
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	if t.scan() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != t.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			t.logger.Debug("log probe watcher error", "path", t.path, "error", err)
			continue
		case <-ticker.C:
		}
		if t.scan() {
			return
		}
	}
}

// scan reads whatever was appended since the last call and reports whether
// the message has been seen. Read errors are swallowed; readiness is simply
// delayed.
func (t *tailer) scan() bool {
	f, err := os.Open(t.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			t.logger.Debug("log probe open failed", "path", t.path, "error", err)
		}
		return false
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return false
	}
	if info.Size() < t.offset {
		// truncated or replaced
		t.offset = 0
		t.pending = t.pending[:0]
	}
	if info.Size() == t.offset {
		return false
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return false
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			t.offset += int64(n)
			if t.consume(buf[:n]) {
				t.found.Store(true)
				return true
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.logger.Debug("log probe read failed", "path", t.path, "error", err)
			}
			return false
		}
	}
}

// consume appends chunk to the partial line buffer and matches complete
// lines. The unterminated remainder is matched too; a line that already
// contains the message will still contain it once finished.
func (t *tailer) consume(chunk []byte) bool {
	t.pending = append(t.pending, chunk...)
	for {
		i := bytes.IndexByte(t.pending, '\n')
		if i < 0 {
			break
		}
		line := t.pending[:i]
		if bytes.Contains(line, t.message) {
			return true
		}
		t.pending = t.pending[i+1:]
	}
	if bytes.Contains(t.pending, t.message) {
		return true
	}
	// keep the buffer from pinning large backing arrays
	if cap(t.pending) > 64*1024 && len(t.pending) < cap(t.pending)/4 {
		t.pending = append([]byte(nil), t.pending...)
	}
	return false
}
