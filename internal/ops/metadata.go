// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gen2brain/go-fitz"

	"github.com/pdiddy/pdf-magic/pkg/types"
)

// Metadata is the JSON sidecar written by the metadata operation.
type Metadata struct {
	Title            string `json:"title"`
	Author           string `json:"author"`
	Subject          string `json:"subject"`
	Keywords         string `json:"keywords"`
	Creator          string `json:"creator"`
	Producer         string `json:"producer"`
	CreationDate     string `json:"creation_date"`
	ModificationDate string `json:"modification_date"`
	Format           string `json:"format"`
	Encryption       string `json:"encryption"`
	PageCount        int    `json:"page_count"`
	FileSize         int64  `json:"file_size"`
}

// metadataOp writes {base}_metadata.json.
type metadataOp struct {
	pdfOp
	cfg Config
}

func (o *metadataOp) Kind() types.Operation { return types.OpExtractMetadata }

func (o *metadataOp) Apply(ctx context.Context, inputs []string, outDir string) (types.Output, error) {
	in := inputs[0]
	md, err := readMetadata(in)
	if err != nil {
		return types.Output{}, err
	}
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return types.Output{}, fmt.Errorf("encoding metadata for %s: %w", in, err)
	}

	out, err := writeReserved(outDir, baseName(in)+"_metadata.json", o.cfg.Overwrite, func(p string) error {
		return os.WriteFile(p, data, 0o644)
	})
	if err != nil {
		return types.Output{}, err
	}
	return types.Output{Inputs: inputs, Paths: []string{out}, Payload: string(data)}, nil
}

func readMetadata(in string) (Metadata, error) {
	info, err := os.Stat(in)
	if err != nil {
		return Metadata{}, fmt.Errorf("stat %s: %w", in, err)
	}

	doc, err := fitz.New(in)
	if err != nil {
		return Metadata{}, fmt.Errorf("opening pdf %s: %w", in, err)
	}
	defer doc.Close()

	m := doc.Metadata()
	return Metadata{
		Title:            m["title"],
		Author:           m["author"],
		Subject:          m["subject"],
		Keywords:         m["keywords"],
		Creator:          m["creator"],
		Producer:         m["producer"],
		CreationDate:     m["creationDate"],
		ModificationDate: m["modDate"],
		Format:           m["format"],
		Encryption:       m["encryption"],
		PageCount:        doc.NumPage(),
		FileSize:         info.Size(),
	}, nil
}
