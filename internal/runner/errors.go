// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package runner

import (
	"errors"

	"github.com/pdiddy/pdf-magic/internal/store"
)

// Submit-time errors are returned synchronously and wrapped with detail;
// test for them with errors.Is.
var (
	ErrNoInputs         = errors.New("no input files")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrInvalidInput     = errors.New("invalid input")
	ErrOutputDir        = errors.New("output directory not usable")
	ErrClosed           = errors.New("runner closed")
)

var (
	// ErrNotFound is returned for an unknown task ID.
	ErrNotFound = store.ErrNotFound

	// ErrTaskActive is returned when clearing a task that is not terminal.
	ErrTaskActive = errors.New("task still active")

	// ErrPanic marks an item whose transform panicked.
	ErrPanic = errors.New("operation panicked")
)
