// Package input loads the (project, url) pairs that define a batch run.
package input

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/tyfong/aiparserpipeline/internal/pipeline"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// LoadCSV parses a CSV with a header row containing "project" and "url"
// columns (case-insensitive) into WorkUnits, one per distinct project.
// Project order follows first appearance; URLs stay in file order with
// duplicates removed per project.
func LoadCSV(path string) ([]pipeline.WorkUnit, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	units, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("parse input %s: %w", path, err)
	}
	return units, nil
}

// Read parses CSV rows from r. Rows without a parseable URL are skipped;
// a run input with zero usable rows is an error.
func Read(r io.Reader) ([]pipeline.WorkUnit, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	projectCol, urlCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "project", "project name", "project_name":
			projectCol = i
		case "url", "urls":
			urlCol = i
		}
	}
	if projectCol < 0 || urlCol < 0 {
		return nil, fmt.Errorf("header must contain project and url columns, got %v", header)
	}

	order := []string{}
	byProject := map[string][]string{}
	seen := map[string]map[string]struct{}{}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		if projectCol >= len(record) || urlCol >= len(record) {
			continue
		}
		project := strings.TrimSpace(record[projectCol])
		rawURL := ExtractURL(record[urlCol])
		if project == "" || rawURL == "" {
			continue
		}
		if _, ok := byProject[project]; !ok {
			order = append(order, project)
			byProject[project] = nil
			seen[project] = map[string]struct{}{}
		}
		if _, dup := seen[project][rawURL]; dup {
			continue
		}
		seen[project][rawURL] = struct{}{}
		byProject[project] = append(byProject[project], rawURL)
	}

	if len(order) == 0 {
		return nil, fmt.Errorf("no usable (project, url) rows found")
	}

	units := make([]pipeline.WorkUnit, 0, len(order))
	for _, project := range order {
		units = append(units, pipeline.WorkUnit{
			Project: project,
			URLs:    byProject[project],
		})
	}
	return units, nil
}

// ExtractURL pulls the first http(s) URL out of a free-form cell. Cells
// in source trackers often carry prose around the link.
func ExtractURL(cell string) string {
	match := urlPattern.FindString(cell)
	return strings.TrimSpace(match)
}
