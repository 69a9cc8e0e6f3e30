// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/pdf-magic/internal/jobs"
)

var batchCmd = &cobra.Command{
	Use:   "batch <jobs.yaml>",
	Short: "Submit every job in a YAML batch file",
	Long: `Batch reads a YAML file listing conversion jobs and submits them together.
Jobs run concurrently up to the max_concurrent_conversions setting (or
--workers); log lines are prefixed with the job name.

  output_dir: out
  jobs:
    - name: contracts
      operation: docx
      inputs: [contracts/*.pdf]
    - operation: merge
      inputs: [a.pdf, b.pdf]`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := jobs.Load(args[0])
		if err != nil {
			return err
		}
		specs := make([]taskSpec, 0, len(f.Jobs))
		for _, j := range f.Jobs {
			specs = append(specs, taskSpec{
				name:   j.Name,
				op:     j.Operation,
				inputs: j.Inputs,
				outDir: j.OutputDir,
			})
		}
		logger.Debug().Str("file", args[0]).Int("jobs", len(specs)).Msg("batch loaded")
		return execute(cmd, specs)
	},
}

func init() {
	addTaskFlags(batchCmd)
	rootCmd.AddCommand(batchCmd)
}
