package pidfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrAlreadyExists is returned by CreateEmpty when another start holds the file.
	ErrAlreadyExists = errors.New("pid file already exists")
	// ErrInvalidPID is returned by ReadPID when the content is not a positive integer.
	ErrInvalidPID = errors.New("invalid pid in pid file")
)

// File is the on-disk record of a started service's process id.
// Its existence marks the service as running; it is created empty before a
// launch and filled in once the process exists.
type File struct {
	path   string
	logger *slog.Logger
}

// CreateEmpty atomically creates an empty PID file at path. It fails with
// ErrAlreadyExists if the file is already present, which makes it the
// admission gate for starting a service.
func CreateEmpty(path string, logger *slog.Logger) (*File, error) {
	if path == "" {
		return nil, errors.New("pid file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create pid file directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, path)
		}
		return nil, fmt.Errorf("create pid file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close pid file: %w", err)
	}
	return &File{path: path, logger: orDefault(logger)}, nil
}

// FromExisting looks up a PID file without creating it. The boolean is false
// when no file exists, meaning the service is not running.
func FromExisting(path string, logger *slog.Logger) (*File, bool) {
	if path == "" {
		return nil, false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, false
	}
	return &File{path: path, logger: orDefault(logger)}, true
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

// Record overwrites the file with the decimal pid.
func (f *File) Record(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPID, pid)
	}
	if err := os.WriteFile(f.path, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// ReadPID returns the pid on the first line. Blank content yields ok=false
// and a logged warning; anything else that is not a positive integer is
// ErrInvalidPID.
func (f *File) ReadPID() (pid int, ok bool, err error) {
	b, err := os.ReadFile(filepath.Clean(f.path))
	if err != nil {
		return 0, false, fmt.Errorf("read pid file: %w", err)
	}
	first, _, _ := strings.Cut(string(b), "\n")
	s := strings.TrimSpace(first)
	if s == "" {
		f.logger.Warn("pid file is empty", "pid_file", f.path)
		return 0, false, nil
	}
	pid, err = strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, false, fmt.Errorf("%w: %q in %s", ErrInvalidPID, s, f.path)
	}
	return pid, true, nil
}

// Destroy removes the file. Failures are logged and reported through the
// return value, never as an error: a handle held by another process may block
// the delete on some platforms.
func (f *File) Destroy() bool {
	err := os.Remove(f.path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return true
	}
	f.logger.Warn("could not delete pid file", "pid_file", f.path, "error", err)
	return false
}

func orDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
