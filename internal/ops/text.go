// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ops

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pdiddy/pdf-magic/internal/ocr"
	"github.com/pdiddy/pdf-magic/pkg/types"
)

// textOp extracts the text layer into {base}.txt. When the layer is empty
// and OCR is enabled, pages are rendered and recognised instead.
type textOp struct {
	pdfOp
	cfg Config

	mu     sync.Mutex
	engine ocr.Engine
	ocrErr error
}

func newTextOp(cfg Config) *textOp {
	return &textOp{cfg: cfg}
}

func (o *textOp) Kind() types.Operation { return types.OpExtractText }

func (o *textOp) Apply(ctx context.Context, inputs []string, outDir string) (types.Output, error) {
	in := inputs[0]
	pages, err := readPages(ctx, in)
	if err != nil {
		return types.Output{}, err
	}
	text := strings.Join(pages, "\n")

	if strings.TrimSpace(text) == "" && o.cfg.UseOCR {
		text, err = o.recognize(ctx, in)
		if err != nil {
			return types.Output{}, err
		}
	}
	// an overrun item is a failure even if the last step ignored ctx
	if err := ctx.Err(); err != nil {
		return types.Output{}, err
	}

	out, err := writeReserved(outDir, baseName(in)+".txt", o.cfg.Overwrite, func(p string) error {
		return os.WriteFile(p, []byte(text), 0o644)
	})
	if err != nil {
		return types.Output{}, err
	}
	return types.Output{Inputs: inputs, Paths: []string{out}, Payload: text}, nil
}

// ocrEngine resolves the engine once per operation. A detection cut short
// by ctx is retried on the next call.
func (o *textOp) ocrEngine(ctx context.Context) (ocr.Engine, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case o.engine != nil:
		return o.engine, nil
	case o.ocrErr != nil:
		return nil, o.ocrErr
	case o.cfg.OCREngine != nil:
		o.engine = o.cfg.OCREngine
		return o.engine, nil
	}

	engine, err := ocr.Detect(ctx, o.cfg.OCRImage)
	if err != nil {
		if ctx.Err() == nil {
			o.ocrErr = err
		}
		return nil, err
	}
	o.engine = engine
	o.cfg.Logger.Info().Str("engine", engine.Name()).Msg("ocr engine detected")
	return engine, nil
}

func (o *textOp) recognize(ctx context.Context, in string) (string, error) {
	engine, err := o.ocrEngine(ctx)
	if err != nil {
		return "", fmt.Errorf("no text layer in %s and OCR unavailable: %w", in, err)
	}

	tmp, err := os.MkdirTemp("", "pdf-magic-ocr-*")
	if err != nil {
		return "", fmt.Errorf("creating OCR work dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	images, err := renderPages(ctx, in, tmp, o.cfg.ImageDPI)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := engine.Recognize(ctx, img, o.cfg.OCRLanguage)
		if err != nil {
			return "", fmt.Errorf("OCR of page %d of %s: %w", i+1, in, err)
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	o.cfg.Logger.Debug().Str("input", in).Int("pages", len(images)).Msg("text recognised with OCR")
	return b.String(), nil
}
