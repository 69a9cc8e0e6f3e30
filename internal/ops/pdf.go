// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ops

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/pdiddy/pdf-magic/pkg/types"
)

var disableConfigDir sync.Once

// pdfcpuConfig returns a fresh configuration that never touches the user's
// pdfcpu config directory and writes classic cross-reference tables.
func pdfcpuConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return conf
}

// mergeOp concatenates every input into merged.pdf, in input order.
type mergeOp struct {
	cfg Config
}

func (o *mergeOp) Kind() types.Operation { return types.OpMergePdf }

func (o *mergeOp) Accepts(path string) bool { return hasExt(path, ".pdf") }

func (o *mergeOp) Plan(inputs []string) [][]string { return [][]string{inputs} }

func (o *mergeOp) Validate(inputs []string) error {
	if len(inputs) < 2 {
		return fmt.Errorf("merge needs at least two PDFs, got %d", len(inputs))
	}
	return nil
}

func (o *mergeOp) Apply(ctx context.Context, inputs []string, outDir string) (types.Output, error) {
	if err := o.Validate(inputs); err != nil {
		return types.Output{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.Output{}, err
	}
	out, err := writeReserved(outDir, "merged.pdf", o.cfg.Overwrite, func(p string) error {
		if err := api.MergeCreateFile(inputs, p, false, pdfcpuConfig()); err != nil {
			return fmt.Errorf("merging %d files: %w", len(inputs), err)
		}
		return nil
	})
	if err != nil {
		return types.Output{}, err
	}
	return types.Output{Inputs: inputs, Paths: []string{out}}, nil
}

// splitOp writes one {base}_page{n}.pdf per page.
type splitOp struct {
	pdfOp
	cfg Config
}

func (o *splitOp) Kind() types.Operation { return types.OpSplitPdf }

func (o *splitOp) Apply(ctx context.Context, inputs []string, outDir string) (types.Output, error) {
	in := inputs[0]
	n, err := api.PageCountFile(in)
	if err != nil {
		return types.Output{}, fmt.Errorf("counting pages of %s: %w", in, err)
	}
	if n == 0 {
		return types.Output{}, fmt.Errorf("pdf %s has no pages", in)
	}

	base := baseName(in)
	paths := make([]string, 0, n)
	for page := 1; page <= n; page++ {
		if err := ctx.Err(); err != nil {
			return types.Output{}, err
		}
		name := fmt.Sprintf("%s_page%d.pdf", base, page)
		p, err := writeReserved(outDir, name, o.cfg.Overwrite, func(p string) error {
			if err := api.TrimFile(in, p, []string{strconv.Itoa(page)}, pdfcpuConfig()); err != nil {
				return fmt.Errorf("extracting page %d of %s: %w", page, in, err)
			}
			return nil
		})
		if err != nil {
			return types.Output{}, err
		}
		paths = append(paths, p)
	}
	return types.Output{Inputs: inputs, Paths: paths}, nil
}

// img2pdfOp wraps images into PDFs: one per image, or a single multi-page
// PDF named after the first image when CombineImages is set.
type img2pdfOp struct {
	cfg Config
}

var imageExts = []string{".png", ".jpg", ".jpeg", ".bmp", ".gif", ".tif", ".tiff"}

func (o *img2pdfOp) Kind() types.Operation { return types.OpImagesToPdf }

func (o *img2pdfOp) Accepts(path string) bool { return hasExt(path, imageExts...) }

func (o *img2pdfOp) Plan(inputs []string) [][]string {
	if o.cfg.CombineImages {
		return [][]string{inputs}
	}
	return eachInput(inputs)
}

func (o *img2pdfOp) Apply(ctx context.Context, inputs []string, outDir string) (types.Output, error) {
	readers := make([]io.Reader, 0, len(inputs))
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return types.Output{}, err
		}
		data, err := flattenImage(in)
		if err != nil {
			return types.Output{}, err
		}
		readers = append(readers, bytes.NewReader(data))
	}

	out, err := writeReserved(outDir, baseName(inputs[0])+".pdf", o.cfg.Overwrite, func(p string) error {
		f, err := os.Create(p)
		if err != nil {
			return fmt.Errorf("creating %s: %w", p, err)
		}
		if err := api.ImportImages(nil, f, readers, pdfcpu.DefaultImportConfig(), pdfcpuConfig()); err != nil {
			f.Close()
			return fmt.Errorf("writing %s: %w", p, err)
		}
		return f.Close()
	})
	if err != nil {
		return types.Output{}, err
	}
	return types.Output{Inputs: inputs, Paths: []string{out}}, nil
}

// flattenImage decodes an image, applies its EXIF orientation, composites it
// onto white to drop any alpha channel and re-encodes it as JPEG.
func flattenImage(path string) ([]byte, error) {
	src, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("opening image %s: %w", path, err)
	}
	b := src.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	flat := imaging.Overlay(bg, src, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("encoding image %s: %w", path, err)
	}
	return buf.Bytes(), nil
}
