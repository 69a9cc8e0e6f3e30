// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// Operation names a file-level transform the task runner can execute.
type Operation string

const (
	OpConvertToDocx   Operation = "docx"
	OpConvertToImages Operation = "images"
	OpExtractText     Operation = "text"
	OpExtractMetadata Operation = "metadata"
	OpImagesToPdf     Operation = "img2pdf"
	OpMergePdf        Operation = "merge"
	OpSplitPdf        Operation = "split"
)

// Operations lists every supported operation in display order.
var Operations = []Operation{
	OpConvertToDocx,
	OpConvertToImages,
	OpExtractText,
	OpExtractMetadata,
	OpImagesToPdf,
	OpMergePdf,
	OpSplitPdf,
}

// ParseOperation maps a user-supplied name to an Operation.
func ParseOperation(s string) (Operation, error) {
	for _, op := range Operations {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// LogLevel classifies a task log entry.
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelError LogLevel = "error"
)

// LogEntry is one timestamped message in a task's log.
type LogEntry struct {
	Time    time.Time `json:"time" yaml:"time"`
	Level   LogLevel  `json:"level" yaml:"level"`
	Input   string    `json:"input,omitempty" yaml:"input,omitempty"`
	Message string    `json:"message" yaml:"message"`
}

// Output is what one item of a task produced.
type Output struct {
	// Inputs are the input paths the item consumed (one, or all for merge).
	Inputs []string `json:"inputs" yaml:"inputs"`

	// Paths are the files or directories written.
	Paths []string `json:"paths" yaml:"paths"`

	// Payload carries extracted text or metadata JSON for extraction operations.
	Payload string `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// Result is set once a task reaches Completed or Failed.
type Result struct {
	Outputs []Output `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Error   string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Task is one user-requested batch operation over one or more input files.
// Values of this type are snapshots; the runner owns the live state.
type Task struct {
	ID         string     `json:"id" yaml:"id"`
	Operation  Operation  `json:"operation" yaml:"operation"`
	InputPaths []string   `json:"input_paths" yaml:"input_paths"`
	OutputDir  string     `json:"output_dir" yaml:"output_dir"`
	Status     Status     `json:"status" yaml:"status"`
	Progress   int        `json:"progress" yaml:"progress"`
	Log        []LogEntry `json:"log" yaml:"log"`
	Result     *Result    `json:"result,omitempty" yaml:"result,omitempty"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	StartedAt  time.Time  `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	FinishedAt time.Time  `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	c := t
	c.InputPaths = append([]string(nil), t.InputPaths...)
	c.Log = append([]LogEntry(nil), t.Log...)
	if t.Result != nil {
		r := Result{Error: t.Result.Error}
		for _, o := range t.Result.Outputs {
			r.Outputs = append(r.Outputs, Output{
				Inputs:  append([]string(nil), o.Inputs...),
				Paths:   append([]string(nil), o.Paths...),
				Payload: o.Payload,
			})
		}
		c.Result = &r
	}
	return c
}

// ErrorCount returns the number of error entries in the task log.
func (t Task) ErrorCount() int {
	n := 0
	for _, e := range t.Log {
		if e.Level == LevelError {
			n++
		}
	}
	return n
}
