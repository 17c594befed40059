// Package report merges completed unit results into the run readout.
//
// Results merge strictly by (project, url, field). Conflicting values for
// one field are all preserved, joined in the output cell; which single
// value is "correct" is a product decision this layer does not guess at.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tyfong/aiparserpipeline/internal/pipeline"
	"github.com/tyfong/aiparserpipeline/internal/storage/atomic"
)

const valueSeparator = "; "

// Uploader mirrors a finished readout to remote storage.
type Uploader interface {
	Save(ctx context.Context, objectName string, data []byte) error
}

// Writer renders unit results to a CSV readout file.
type Writer struct {
	outputDir string
	clock     pipeline.Clock
	uploader  Uploader
	logger    *zap.Logger
}

// NewWriter creates a Writer targeting outputDir. uploader may be nil.
func NewWriter(outputDir string, clock pipeline.Clock, uploader Uploader, logger *zap.Logger) (*Writer, error) {
	if strings.TrimSpace(outputDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		outputDir: outputDir,
		clock:     clock,
		uploader:  uploader,
		logger:    logger,
	}, nil
}

// Write renders every unit result into readout_<timestamp>.csv under the
// output directory and returns the written path. The write is atomic so
// a crashed run never leaves a truncated readout.
func (w *Writer) Write(ctx context.Context, results map[string]pipeline.UnitResult) (string, error) {
	data, err := Render(results)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("readout_%s.csv", w.clock.Now().Format("2006-01-02-1504"))
	path := filepath.Join(w.outputDir, name)
	if err := atomic.WriteFile(path, data); err != nil {
		return "", fmt.Errorf("write readout: %w", err)
	}
	w.logger.Info("readout written",
		zap.String("path", path), zap.Int("projects", len(results)))

	if w.uploader != nil {
		if err := w.uploader.Save(ctx, name, data); err != nil {
			// The local readout is the durable artifact; the mirror is
			// best-effort.
			w.logger.Warn("readout upload failed", zap.String("object", name), zap.Error(err))
		}
	}
	return path, nil
}

// Render produces the CSV bytes for a set of unit results. Columns are
// project, url, then the sorted union of every field name observed.
func Render(results map[string]pipeline.UnitResult) ([]byte, error) {
	projects := make([]string, 0, len(results))
	fieldSet := map[string]struct{}{}
	for project, result := range results {
		projects = append(projects, project)
		for _, name := range result.FieldNames() {
			fieldSet[name] = struct{}{}
		}
	}
	sort.Strings(projects)

	fields := make([]string, 0, len(fieldSet))
	for name := range fieldSet {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	header := append([]string{"project", "url"}, fields...)
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for _, project := range projects {
		result := results[project]
		for _, row := range result.Rows {
			record := make([]string, 0, len(header))
			record = append(record, project, row.URL)
			for _, field := range fields {
				record = append(record, strings.Join(row.Values[field], valueSeparator))
			}
			if err := cw.Write(record); err != nil {
				return nil, fmt.Errorf("write row: %w", err)
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
