// Package prompt loads numbered prompt templates from a directory.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// projectVar is the placeholder substituted with the project name.
const projectVar = "$PROJECT"

// Loader reads prompt files named <base><n>.txt for n in 1..count.
type Loader struct {
	dir   string
	base  string
	count int
}

// NewLoader creates a Loader for count prompts under dir.
func NewLoader(dir, base string, count int) (*Loader, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("prompt directory is required")
	}
	if strings.TrimSpace(base) == "" {
		return nil, fmt.Errorf("prompt filename base is required")
	}
	if count <= 0 {
		return nil, fmt.Errorf("prompt count must be > 0")
	}
	return &Loader{dir: dir, base: base, count: count}, nil
}

// Load reads every prompt file in order. A missing file fails the load;
// prompts are part of the run's fixed inputs.
func (l *Loader) Load() ([]string, error) {
	prompts := make([]string, 0, l.count)
	for n := 1; n <= l.count; n++ {
		path := filepath.Join(l.dir, fmt.Sprintf("%s%d.txt", l.base, n))
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", path, err)
		}
		prompts = append(prompts, string(data))
	}
	return prompts, nil
}

// Substitute replaces the project placeholder in a prompt template.
func Substitute(template, project string) string {
	return strings.ReplaceAll(template, projectVar, project)
}
