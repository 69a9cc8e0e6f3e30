// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ops implements the file-level transforms the task runner executes:
// PDF to DOCX, page images, text and metadata, images to PDF, merge and split.
// Each transform is an Operation; the runner picks one from a Library and
// treats them all identically.
package ops

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pdiddy/pdf-magic/internal/ocr"
	"github.com/pdiddy/pdf-magic/pkg/types"
)

// Operation is one named transform. Implementations are stateless apart
// from their configuration and safe for concurrent use.
type Operation interface {
	// Kind names the operation.
	Kind() types.Operation

	// Accepts reports whether path has an extension this operation reads.
	Accepts(path string) bool

	// Plan groups the task inputs into items. Per-file operations yield one
	// item per input; merge yields a single item holding every input.
	Plan(inputs []string) [][]string

	// Apply runs the transform on one item, writing into outDir.
	Apply(ctx context.Context, inputs []string, outDir string) (types.Output, error)
}

// Validator is implemented by operations with constraints on the whole
// input list. The runner calls it before a task is accepted.
type Validator interface {
	Validate(inputs []string) error
}

// Config carries the settings the transforms read.
type Config struct {
	// Overwrite replaces existing outputs instead of suffixing (1), (2), ...
	Overwrite bool

	// UseOCR enables the OCR fallback for PDFs without a text layer.
	UseOCR      bool
	OCRLanguage string
	OCRImage    string
	// OCREngine overrides engine detection when set.
	OCREngine ocr.Engine

	// CombineImages makes img2pdf write one multi-page PDF per task.
	CombineImages bool

	DocxFont     string
	DocxFontSize int

	// ImageDPI is the render resolution for page images and OCR.
	ImageDPI int

	Logger zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.DocxFont == "" {
		c.DocxFont = "Arial"
	}
	if c.DocxFontSize <= 0 {
		c.DocxFontSize = 11
	}
	if c.ImageDPI <= 0 {
		c.ImageDPI = 150
	}
	if c.OCRLanguage == "" {
		c.OCRLanguage = "eng"
	}
	return c
}

// Library maps operation kinds to implementations.
type Library struct {
	mu  sync.RWMutex
	ops map[types.Operation]Operation
}

// NewLibrary returns a library holding the given operations.
func NewLibrary(ops ...Operation) *Library {
	l := &Library{ops: make(map[types.Operation]Operation, len(ops))}
	for _, op := range ops {
		l.ops[op.Kind()] = op
	}
	return l
}

// Default returns a library with every built-in operation configured by cfg.
func Default(cfg Config) *Library {
	cfg = cfg.withDefaults()
	return NewLibrary(
		&docxOp{cfg: cfg},
		&imagesOp{cfg: cfg},
		newTextOp(cfg),
		&metadataOp{cfg: cfg},
		&img2pdfOp{cfg: cfg},
		&mergeOp{cfg: cfg},
		&splitOp{cfg: cfg},
	)
}

// Register adds or replaces an operation.
func (l *Library) Register(op Operation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops[op.Kind()] = op
}

// Lookup returns the operation for kind.
func (l *Library) Lookup(kind types.Operation) (Operation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	op, ok := l.ops[kind]
	return op, ok
}

// eachInput is the Plan for per-file operations.
func eachInput(inputs []string) [][]string {
	items := make([][]string, len(inputs))
	for i, in := range inputs {
		items[i] = []string{in}
	}
	return items
}

func hasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// baseName strips directory and extension.
func baseName(path string) string {
	b := filepath.Base(path)
	return strings.TrimSuffix(b, filepath.Ext(b))
}

// pdfOp supplies Accepts and Plan for single-PDF operations.
type pdfOp struct{}

func (pdfOp) Accepts(path string) bool { return hasExt(path, ".pdf") }

func (pdfOp) Plan(inputs []string) [][]string { return eachInput(inputs) }
