// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store defines the task registry: snapshots of conversion tasks the
// presentation layer lists, inspects, clears, and exports. Implementations
// live in the memory and sqlite subpackages.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pdf-magic/pkg/types"
)

// ErrNotFound is returned when no task has the requested ID.
var ErrNotFound = errors.New("task not found")

// Store persists task snapshots for the lifetime of the application.
type Store interface {
	// Save inserts or replaces the task record. The log is written through
	// AppendLog and is ignored by Save.
	Save(ctx context.Context, t types.Task) error

	// AppendLog adds one entry to the end of the task's log.
	AppendLog(ctx context.Context, id string, e types.LogEntry) error

	// Get returns the task with its full log.
	Get(ctx context.Context, id string) (types.Task, error)

	// List returns every task ordered by creation time.
	List(ctx context.Context) ([]types.Task, error)

	// Delete removes the task and its log.
	Delete(ctx context.Context, id string) error
}

// Report is the document written by Export.
type Report struct {
	Tasks []types.Task `json:"tasks" yaml:"tasks"`
}

// Export writes every task in s to path. The format follows the file
// extension: .json for JSON, anything else for YAML.
func Export(ctx context.Context, s Store, path string) error {
	tasks, err := s.List(ctx)
	if err != nil {
		return fmt.Errorf("listing tasks for export: %w", err)
	}
	report := Report{Tasks: tasks}

	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
	default:
		data, err = yaml.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
