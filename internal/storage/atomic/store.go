// Package atomic implements a durable key->blob store with all-or-nothing
// writes. Readers never observe partial content: every write lands in a
// uniquely-named temp file, is synced, and is renamed into place.
package atomic

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned by Read when no entry exists for the key.
// An absent entry is an expected outcome, not a failure.
var ErrNotFound = errors.New("entry not found")

const defaultMaxAttempts = 3

// Config captures the parameters for the store.
type Config struct {
	// BaseDir is the root directory where entries are stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// RetryBase is the first retry delay for failed writes; it doubles
	// per attempt. Defaults to one second.
	RetryBase time.Duration `mapstructure:"retry_base" yaml:"retry_base"`
	// MaxAttempts bounds write retries. Defaults to 3.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// Store reads and writes blobs under one directory. It is safe for
// concurrent use by multiple goroutines and multiple processes sharing
// the directory.
type Store struct {
	baseDir     string
	retryBase   time.Duration
	maxAttempts int
	logger      *zap.Logger

	// write performs one atomic write attempt. Tests substitute it to
	// inject transient failures.
	write func(path string, data []byte) error
}

// New creates a Store rooted at cfg.BaseDir, creating the directory if
// needed and verifying it is writable.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Store{
		baseDir:     cfg.BaseDir,
		retryBase:   cfg.RetryBase,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger,
		write:       WriteFile,
	}, nil
}

// Dir returns the store's base directory.
func (s *Store) Dir() string {
	return s.baseDir
}

// Write durably persists content under key. Transient failures are
// retried with doubling backoff; exhausting all attempts surfaces the
// last error.
func (s *Store) Write(key string, content []byte) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}

	var lastErr error
	delay := s.retryBase
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if lastErr = s.write(target, content); lastErr == nil {
			return nil
		}
		if attempt == s.maxAttempts {
			break
		}
		s.logger.Warn("atomic write failed, retrying",
			zap.String("key", key),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)
		time.Sleep(delay)
		delay *= 2
	}
	return fmt.Errorf("write %s after %d attempts: %w", key, s.maxAttempts, lastErr)
}

// Read returns the content stored under key, or ErrNotFound.
func (s *Store) Read(key string) ([]byte, error) {
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the entry for key. Deleting a missing key succeeds.
func (s *Store) Delete(key string) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) resolve(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	fullPath := filepath.Join(s.baseDir, key)

	// Reject keys that escape the base directory.
	cleanBase := filepath.Clean(s.baseDir)
	cleanFull := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}

// WriteFile writes data to path atomically: temp file in the same
// directory, flush and sync, then a single rename onto the target. A
// concurrent reader of path sees either the old content or the new,
// never a mix.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
