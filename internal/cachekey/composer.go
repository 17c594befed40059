// Package cachekey derives collision-resistant cache keys from URL and
// project identity plus the owning execution context.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/tyfong/aiparserpipeline/internal/pipeline"
)

const (
	urlHashLen       = 16
	namespaceHashLen = 8
	filePrefix       = "cache"
	fileExt          = ".txt"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Key names one cache entry. The string form is filename-safe.
type Key string

// Filename returns the on-disk entry name for the key.
func (k Key) Filename() string {
	return string(k) + fileExt
}

// Composer builds keys scoped to one process and one execution context.
// Two concurrent tasks fetching the same URL get distinct keys, so they
// never race on one in-flight entry.
type Composer struct {
	pid    int
	taskID string
}

// New returns a Composer bound to the current process and the given task
// identifier. TaskID must be unique per concurrent execution context.
func New(taskID string) (*Composer, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, fmt.Errorf("task id is required")
	}
	return &Composer{pid: os.Getpid(), taskID: taskID}, nil
}

// Compose derives the key for a (url, namespace) pair. Equal pairs from
// the same Composer always yield the same key. Empty inputs are
// programmer errors and fail loudly.
func (c *Composer) Compose(url, namespace string) (Key, error) {
	if strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("url is required")
	}
	if strings.TrimSpace(namespace) == "" {
		return "", fmt.Errorf("namespace is required")
	}

	urlHash, err := URLHash(url)
	if err != nil {
		return "", err
	}
	nsHash := NamespaceHash(namespace)

	return Key(fmt.Sprintf("%s_%s_%s_%d_%s", filePrefix, urlHash, nsHash, c.pid, c.taskID)), nil
}

// URLHash returns the 16-character digest of the normalized URL.
func URLHash(url string) (string, error) {
	normalized, err := pipeline.NormalizeURL(url)
	if err != nil {
		return "", fmt.Errorf("normalize url: %w", err)
	}
	return truncatedDigest(normalized, urlHashLen), nil
}

// NamespaceHash returns the 8-character digest of the normalized
// namespace. Case is preserved; whitespace runs collapse to one space.
func NamespaceHash(namespace string) string {
	normalized := whitespaceRun.ReplaceAllString(strings.TrimSpace(namespace), " ")
	return truncatedDigest(normalized, namespaceHashLen)
}

func truncatedDigest(s string, n int) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:n]
}
