// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"

	"github.com/pdiddy/pdf-magic/pkg/types"
)

const imagesDir = "images"

// imagesOp renders every page to images/{base}/page_{n}.png.
type imagesOp struct {
	pdfOp
	cfg Config
}

func (o *imagesOp) Kind() types.Operation { return types.OpConvertToImages }

func (o *imagesOp) Apply(ctx context.Context, inputs []string, outDir string) (types.Output, error) {
	in := inputs[0]
	parent := filepath.Join(outDir, imagesDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return types.Output{}, fmt.Errorf("creating %s: %w", parent, err)
	}
	dir, err := ReserveDir(parent, baseName(in), o.cfg.Overwrite)
	if err != nil {
		return types.Output{}, err
	}

	paths, err := renderPages(ctx, in, dir, o.cfg.ImageDPI)
	if err != nil {
		if !o.cfg.Overwrite {
			os.RemoveAll(dir)
		}
		return types.Output{}, err
	}
	o.cfg.Logger.Debug().Str("input", in).Int("pages", len(paths)).Msg("pages rendered")
	return types.Output{Inputs: inputs, Paths: paths}, nil
}

// renderPages writes page_{n}.png for each page of the PDF into dir.
func renderPages(ctx context.Context, in, dir string, dpi int) ([]string, error) {
	doc, err := fitz.New(in)
	if err != nil {
		return nil, fmt.Errorf("opening pdf %s: %w", in, err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("pdf %s has no pages", in)
	}

	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := doc.ImageDPI(i, float64(dpi))
		if err != nil {
			return nil, fmt.Errorf("rendering page %d of %s: %w", i+1, in, err)
		}
		p := filepath.Join(dir, fmt.Sprintf("page_%d.png", i+1))
		if err := imaging.Save(img, p); err != nil {
			return nil, fmt.Errorf("saving page %d of %s: %w", i+1, in, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
