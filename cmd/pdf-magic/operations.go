// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/pdf-magic/pkg/types"
)

// opCommands describes the one-operation commands.
var opCommands = []struct {
	op    types.Operation
	short string
	args  cobra.PositionalArgs
}{
	{types.OpConvertToDocx, "Convert PDFs to Word documents", cobra.MinimumNArgs(1)},
	{types.OpConvertToImages, "Render every PDF page to a PNG image", cobra.MinimumNArgs(1)},
	{types.OpExtractText, "Extract plain text from PDFs, with OCR fallback", cobra.MinimumNArgs(1)},
	{types.OpExtractMetadata, "Write PDF metadata as JSON", cobra.MinimumNArgs(1)},
	{types.OpImagesToPdf, "Wrap images into PDFs", cobra.MinimumNArgs(1)},
	{types.OpMergePdf, "Merge PDFs, in the order given, into merged.pdf", cobra.MinimumNArgs(2)},
	{types.OpSplitPdf, "Split PDFs into one file per page", cobra.MinimumNArgs(1)},
}

// single runs one task over args.
func single(cmd *cobra.Command, op types.Operation, args []string) error {
	return execute(cmd, []taskSpec{{name: string(op), op: op, inputs: args}})
}

var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Run the default conversion (or --type) over files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		op := cfg.DefaultConversionType
		if cmd.Flags().Changed("type") {
			name, _ := cmd.Flags().GetString("type")
			parsed, err := types.ParseOperation(name)
			if err != nil {
				return err
			}
			op = parsed
		}
		return single(cmd, op, args)
	},
}

func init() {
	for _, c := range opCommands {
		op := c.op
		cmd := &cobra.Command{
			Use:   string(op) + " [files...]",
			Short: c.short,
			Args:  c.args,
			RunE: func(cmd *cobra.Command, args []string) error {
				return single(cmd, op, args)
			},
		}
		addTaskFlags(cmd)
		rootCmd.AddCommand(cmd)
	}

	convertCmd.Flags().String("type", "", "operation: docx, images, text, metadata, img2pdf, merge, split")
	addTaskFlags(convertCmd)
	rootCmd.AddCommand(convertCmd)
}
