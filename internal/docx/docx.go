// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package docx writes minimal WordprocessingML documents: paragraphs of
// plain runs, simple tables, and page breaks.
package docx

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
)

// Run is a span of text with uniform formatting.
type Run struct {
	Text string
	Font string
	// Size is in points; zero leaves the style default.
	Size int
}

// Paragraph is a block of runs.
type Paragraph struct {
	Runs []Run
	// Align is a w:jc value ("left", "center", ...); empty inherits.
	Align string
	// PageBreakBefore starts the paragraph on a new page.
	PageBreakBefore bool
}

// Text returns the concatenated run text.
func (p Paragraph) Text() string {
	var b strings.Builder
	for _, r := range p.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

// Cell is one table cell.
type Cell struct {
	Paragraphs []Paragraph
}

// Table is a grid of cells, row-major.
type Table struct {
	Rows [][]Cell
}

// Block is either a paragraph or a table; exactly one field is set.
type Block struct {
	Paragraph *Paragraph
	Table     *Table
}

// Document is an ordered list of body blocks.
type Document struct {
	Blocks []Block

	// DefaultFont and DefaultSize go into the styles part.
	DefaultFont string
	DefaultSize int
}

// AddParagraph appends a paragraph holding a single run of text.
func (d *Document) AddParagraph(text string) *Paragraph {
	p := &Paragraph{Runs: []Run{{Text: text}}}
	d.Blocks = append(d.Blocks, Block{Paragraph: p})
	return p
}

// AddTable appends a table built from plain cell strings.
func (d *Document) AddTable(rows [][]string) *Table {
	t := &Table{}
	for _, row := range rows {
		cells := make([]Cell, len(row))
		for i, text := range row {
			cells[i] = Cell{Paragraphs: []Paragraph{{Runs: []Run{{Text: text}}}}}
		}
		t.Rows = append(t.Rows, cells)
	}
	d.Blocks = append(d.Blocks, Block{Table: t})
	return t
}

// Paragraphs returns the top-level paragraphs in order.
func (d *Document) Paragraphs() []*Paragraph {
	var out []*Paragraph
	for _, b := range d.Blocks {
		if b.Paragraph != nil {
			out = append(out, b.Paragraph)
		}
	}
	return out
}

// Tables returns the tables in order.
func (d *Document) Tables() []*Table {
	var out []*Table
	for _, b := range d.Blocks {
		if b.Table != nil {
			out = append(out, b.Table)
		}
	}
	return out
}

// Normalize applies font and size to every run. Body paragraphs have their
// whitespace collapsed. Table-cell paragraphs get size-1 and left alignment.
func (d *Document) Normalize(font string, size int) {
	d.DefaultFont = font
	d.DefaultSize = size

	cellSize := size - 1
	if cellSize < 1 {
		cellSize = size
	}

	for _, p := range d.Paragraphs() {
		collapse(p)
		setRuns(p, font, size)
	}
	for _, t := range d.Tables() {
		for _, row := range t.Rows {
			for ci := range row {
				for pi := range row[ci].Paragraphs {
					p := &row[ci].Paragraphs[pi]
					p.Align = "left"
					setRuns(p, font, cellSize)
				}
			}
		}
	}
}

func setRuns(p *Paragraph, font string, size int) {
	for i := range p.Runs {
		p.Runs[i].Font = font
		p.Runs[i].Size = size
	}
}

// collapse joins the paragraph text into one run with single spaces.
func collapse(p *Paragraph) {
	text := strings.Join(strings.Fields(p.Text()), " ")
	p.Runs = []Run{{Text: text}}
}

// WriteFile writes the document to path, replacing any existing file.
func (d *Document) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := d.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write emits the document as a .docx package.
func (d *Document) Write(w io.Writer) error {
	zw := zip.NewWriter(w)

	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/_rels/document.xml.rels", documentRelsXML},
		{"word/styles.xml", d.stylesXML()},
		{"word/document.xml", d.documentXML()},
	}
	for _, p := range parts {
		fw, err := zw.Create(p.name)
		if err != nil {
			return fmt.Errorf("adding %s: %w", p.name, err)
		}
		if _, err := io.WriteString(fw, p.body); err != nil {
			return fmt.Errorf("writing %s: %w", p.name, err)
		}
	}
	return zw.Close()
}

func (d *Document) documentXML() string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<w:document xmlns:w="` + nsW + `"><w:body>`)
	for _, blk := range d.Blocks {
		switch {
		case blk.Paragraph != nil:
			writeParagraph(&b, blk.Paragraph)
		case blk.Table != nil:
			writeTable(&b, blk.Table)
		}
	}
	b.WriteString(`<w:sectPr><w:pgSz w:w="11906" w:h="16838"/></w:sectPr>`)
	b.WriteString(`</w:body></w:document>`)
	return b.String()
}

func writeParagraph(b *strings.Builder, p *Paragraph) {
	b.WriteString("<w:p>")
	if p.Align != "" || p.PageBreakBefore {
		b.WriteString("<w:pPr>")
		if p.PageBreakBefore {
			b.WriteString("<w:pageBreakBefore/>")
		}
		if p.Align != "" {
			fmt.Fprintf(b, `<w:jc w:val="%s"/>`, escape(p.Align))
		}
		b.WriteString("</w:pPr>")
	}
	for _, r := range p.Runs {
		b.WriteString("<w:r>")
		if r.Font != "" || r.Size > 0 {
			b.WriteString("<w:rPr>")
			if r.Font != "" {
				f := escape(r.Font)
				fmt.Fprintf(b, `<w:rFonts w:ascii="%s" w:hAnsi="%s" w:cs="%s"/>`, f, f, f)
			}
			if r.Size > 0 {
				// w:sz is in half-points
				fmt.Fprintf(b, `<w:sz w:val="%d"/><w:szCs w:val="%d"/>`, r.Size*2, r.Size*2)
			}
			b.WriteString("</w:rPr>")
		}
		fmt.Fprintf(b, `<w:t xml:space="preserve">%s</w:t>`, escape(r.Text))
		b.WriteString("</w:r>")
	}
	b.WriteString("</w:p>")
}

func writeTable(b *strings.Builder, t *Table) {
	b.WriteString(`<w:tbl><w:tblPr><w:tblW w:w="0" w:type="auto"/></w:tblPr>`)
	for _, row := range t.Rows {
		b.WriteString("<w:tr>")
		for _, c := range row {
			b.WriteString("<w:tc>")
			if len(c.Paragraphs) == 0 {
				// a cell must hold at least one paragraph
				b.WriteString("<w:p/>")
			}
			for i := range c.Paragraphs {
				writeParagraph(b, &c.Paragraphs[i])
			}
			b.WriteString("</w:tc>")
		}
		b.WriteString("</w:tr>")
	}
	b.WriteString("</w:tbl>")
}

func (d *Document) stylesXML() string {
	font := d.DefaultFont
	if font == "" {
		font = "Calibri"
	}
	size := d.DefaultSize
	if size <= 0 {
		size = 11
	}
	f := escape(font)
	return xml.Header + `<w:styles xmlns:w="` + nsW + `"><w:docDefaults><w:rPrDefault><w:rPr>` +
		fmt.Sprintf(`<w:rFonts w:ascii="%s" w:hAnsi="%s" w:cs="%s"/><w:sz w:val="%d"/><w:szCs w:val="%d"/>`, f, f, f, size*2, size*2) +
		`</w:rPr></w:rPrDefault></w:docDefaults>` +
		`<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/></w:style>` +
		`</w:styles>`
}

func escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		// XML 1.0 forbids most control characters
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			continue
		}
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

const nsW = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

const contentTypesXML = xml.Header + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>` +
	`</Types>`

const relsXML = xml.Header + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
	`</Relationships>`

const documentRelsXML = xml.Header + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>` +
	`</Relationships>`
