// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ops

import (
	"context"

	"github.com/pdiddy/pdf-magic/internal/docx"
	"github.com/pdiddy/pdf-magic/pkg/types"
)

// docxOp converts a PDF's text layer into a Word document, one paragraph per
// text block, with each PDF page starting on a new page.
type docxOp struct {
	pdfOp
	cfg Config
}

func (o *docxOp) Kind() types.Operation { return types.OpConvertToDocx }

func (o *docxOp) Apply(ctx context.Context, inputs []string, outDir string) (types.Output, error) {
	in := inputs[0]
	pages, err := readPages(ctx, in)
	if err != nil {
		return types.Output{}, err
	}

	doc := buildDocument(pages)
	doc.Normalize(o.cfg.DocxFont, o.cfg.DocxFontSize)

	out, err := writeReserved(outDir, baseName(in)+".docx", o.cfg.Overwrite, doc.WriteFile)
	if err != nil {
		return types.Output{}, err
	}
	return types.Output{Inputs: inputs, Paths: []string{out}}, nil
}

func buildDocument(pages []string) *docx.Document {
	doc := &docx.Document{}
	for i, text := range pages {
		paras := splitParagraphs(text)
		if len(paras) == 0 {
			// keep the page so page numbering survives
			paras = []string{""}
		}
		for j, para := range paras {
			p := doc.AddParagraph(para)
			p.PageBreakBefore = i > 0 && j == 0
		}
	}
	return doc
}
