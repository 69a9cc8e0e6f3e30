// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pdf-magic/internal/ops"
	"github.com/pdiddy/pdf-magic/internal/runner"
	"github.com/pdiddy/pdf-magic/internal/store"
	"github.com/pdiddy/pdf-magic/internal/store/sqlite"
	"github.com/pdiddy/pdf-magic/pkg/types"
)

// taskSpec is one task the command will submit.
type taskSpec struct {
	name   string
	op     types.Operation
	inputs []string
	outDir string
}

// notifySignals relays interrupt and termination signals to c until the
// returned stop func is called.
var notifySignals = func(c chan<- os.Signal) (stop func()) {
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	return func() { signal.Stop(c) }
}

// newCatalog builds the operation library for a run.
var newCatalog = func() runner.Catalog {
	return ops.Default(opsConfig())
}

// addTaskFlags registers the flags shared by every converting command.
func addTaskFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output-dir", "o", "", "directory for results (default: Converted_<OP> next to the first input)")
	cmd.Flags().Bool("overwrite", false, "replace existing outputs instead of adding (1), (2), ...")
	cmd.Flags().Bool("ocr", true, "fall back to OCR for PDFs without a text layer")
	cmd.Flags().Bool("combine", false, "img2pdf: write one PDF for all images")
	cmd.Flags().Int("workers", 0, "maximum tasks running at once, 1-16 (0 or unset: from settings)")
	cmd.Flags().Duration("timeout", 0, "per-file time limit, 0 for none (default from settings)")
	cmd.Flags().String("report", "", "write the task registry to this file (.json or .yaml)")
	cmd.Flags().Bool("print", false, "print extracted text or metadata to stdout")
}

// applyFlags overrides settings with flags the user set explicitly.
func applyFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("output-dir") {
		cfg.OutputDirectory, _ = f.GetString("output-dir")
	}
	if f.Changed("overwrite") {
		cfg.OverwriteExistingFiles, _ = f.GetBool("overwrite")
	}
	if f.Changed("ocr") {
		cfg.UseOCRForTextExtraction, _ = f.GetBool("ocr")
	}
	if f.Changed("combine") {
		cfg.CombineImages, _ = f.GetBool("combine")
	}
	// zero keeps the setting
	if n, _ := f.GetInt("workers"); f.Changed("workers") && n > 0 {
		cfg.MaxConcurrentConversions = min(n, 16)
	}
	if d, _ := f.GetDuration("timeout"); f.Changed("timeout") && d >= 0 {
		cfg.ItemTimeout = d
	}
}

func opsConfig() ops.Config {
	return ops.Config{
		Overwrite:     cfg.OverwriteExistingFiles,
		UseOCR:        cfg.UseOCRForTextExtraction,
		OCRLanguage:   cfg.OCRLanguage,
		OCRImage:      cfg.OCRImage,
		CombineImages: cfg.CombineImages,
		DocxFont:      cfg.DocxFont,
		DocxFontSize:  cfg.DocxFontSize,
		ImageDPI:      cfg.ImageDPI,
		Logger:        logger.Component("ops"),
	}
}

// execute submits the tasks, renders their events until every one reaches a
// terminal state, and reports the outcome. The first interrupt cancels all
// tasks after their current file; a second one aborts immediately.
func execute(cmd *cobra.Command, specs []taskSpec) error {
	applyFlags(cmd)
	reportPath, _ := cmd.Flags().GetString("report")
	printPayload, _ := cmd.Flags().GetBool("print")

	db, err := sqlite.Open(sqlite.MemoryDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, hardStop := context.WithCancel(cmd.Context())
	defer hardStop()

	r := runner.New(ctx, newCatalog(), runner.Config{
		MaxConcurrent: cfg.MaxConcurrentConversions,
		ItemTimeout:   cfg.ItemTimeout,
		Store:         db,
		Logger:        logger.Logger,
	})
	events := r.Events()

	stderr := cmd.ErrOrStderr()
	names := make(map[string]string)
	var ids []string
	var submitErrs []error
	for _, s := range specs {
		outDir := s.outDir
		if outDir == "" || cmd.Flags().Changed("output-dir") {
			outDir = cfg.OutputDirectory
		}
		id, err := r.Submit(s.inputs, s.op, outDir)
		if err != nil {
			submitErrs = append(submitErrs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		names[id] = s.name
		ids = append(ids, id)
	}

	con := newConsole(stderr, names)
	for _, err := range submitErrs {
		con.notice(err.Error())
	}
	if len(ids) == 0 {
		r.Close()
		return errors.Join(submitErrs...)
	}

	sig := make(chan os.Signal, 2)
	stopSignals := notifySignals(sig)
	defer stopSignals()

	go r.Close()

	con.waiting(fmt.Sprintf("%d task(s) queued", len(ids)))
	interrupts := 0
loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			con.handle(ev)
		case <-sig:
			interrupts++
			if interrupts == 1 {
				con.notice("cancelling after the current file; interrupt again to stop now")
				for _, id := range ids {
					_ = r.Cancel(id)
				}
				continue
			}
			con.notice("stopping now")
			hardStop()
		}
	}
	con.close()

	tasks, err := r.Tasks()
	if err != nil {
		return err
	}
	if printPayload {
		printPayloads(cmd, tasks)
	}
	if reportPath != "" {
		if err := store.Export(context.WithoutCancel(ctx), db, reportPath); err != nil {
			return err
		}
		logger.Info().Str("path", reportPath).Msg("report written")
	}
	return summarize(con, tasks, submitErrs)
}

func printPayloads(cmd *cobra.Command, tasks []types.Task) {
	out := cmd.OutOrStdout()
	for _, t := range tasks {
		if t.Result == nil {
			continue
		}
		for _, o := range t.Result.Outputs {
			if o.Payload != "" {
				fmt.Fprintln(out, o.Payload)
			}
		}
	}
}

// summarize prints where results went and returns an error unless every
// task completed.
func summarize(con *console, tasks []types.Task, submitErrs []error) error {
	bad := len(submitErrs)
	for _, t := range tasks {
		name := con.names[t.ID]
		logger.Info().
			Str("task", t.ID).
			Str("name", name).
			Str("status", string(t.Status)).
			Int("errors", t.ErrorCount()).
			Msg("task finished")

		switch t.Status {
		case types.StatusCompleted:
			msg := fmt.Sprintf("%s: output in %s", name, t.OutputDir)
			if n := t.ErrorCount(); n > 0 {
				msg += fmt.Sprintf(" (%d file(s) skipped)", n)
			}
			con.line(colors.info, "→", "", msg)
		default:
			bad++
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d task(s) did not complete", bad, len(tasks)+len(submitErrs))
	}
	return nil
}
