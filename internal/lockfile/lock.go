// Package lockfile provides OS-level single-instance guarding via an
// advisory flock on a well-known path. The kernel drops the lock when the
// holder dies, so a crashed run never leaves the scope permanently stuck.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ErrAlreadyLocked reports that another live process holds the lock.
// Losing the race is an expected outcome, not a failure.
var ErrAlreadyLocked = errors.New("another instance holds the lock")

// Guard is a process-wide advisory lock tied to one path.
type Guard struct {
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	file *os.File
}

// New creates a Guard for the given lock file path.
func New(path string, logger *zap.Logger) (*Guard, error) {
	if path == "" {
		return nil, fmt.Errorf("lock path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{path: path, logger: logger}, nil
}

// Acquire attempts a non-blocking exclusive lock. It returns
// ErrAlreadyLocked when another process holds it. The file content (PID
// and timestamp) is diagnostic only; lock state lives in the kernel.
func (g *Guard) Acquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.file != nil {
		return nil
	}

	file, err := os.OpenFile(g.path, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			g.logger.Info("lock held by another process", zap.String("path", g.path))
			return ErrAlreadyLocked
		}
		return fmt.Errorf("flock: %w", err)
	}

	pid := os.Getpid()
	diag := fmt.Sprintf("%d\n%s\n", pid, time.Now().UTC().Format(time.RFC3339))
	if err := file.Truncate(0); err == nil {
		if _, err := file.WriteAt([]byte(diag), 0); err != nil {
			g.logger.Warn("lock diagnostics write failed", zap.Error(err))
		}
	}

	g.file = file
	g.logger.Info("instance lock acquired",
		zap.String("path", g.path), zap.Int("pid", pid))
	return nil
}

// Release unlocks and closes the lock file. Idempotent; the file itself
// is removed best-effort.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.file == nil {
		return
	}
	if err := syscall.Flock(int(g.file.Fd()), syscall.LOCK_UN); err != nil {
		g.logger.Warn("flock unlock failed", zap.Error(err))
	}
	if err := g.file.Close(); err != nil {
		g.logger.Warn("lock file close failed", zap.Error(err))
	}
	g.file = nil

	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		g.logger.Warn("lock file remove failed", zap.Error(err))
	}
	g.logger.Info("instance lock released", zap.String("path", g.path))
}

// Held reports whether this Guard currently holds the lock.
func (g *Guard) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.file != nil
}
