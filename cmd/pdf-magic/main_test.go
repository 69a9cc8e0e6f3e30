// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pdf-magic/internal/ops"
	"github.com/pdiddy/pdf-magic/internal/runner"
	"github.com/pdiddy/pdf-magic/pkg/types"
)

// resetFlags restores every flag to its default so earlier runs of the
// shared command tree do not leak into the next one.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// runCLI executes the root command with an isolated settings file.
func runCLI(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append(args,
		"--config", filepath.Join(dir, "settings.json"),
		"--env-file", filepath.Join(dir, "absent.env"),
	))
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := runCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, "pdf-magic dev\n", out)
}

func TestSettingsCommands(t *testing.T) {
	dir := t.TempDir()

	_, _, err := runCLI(t, dir, "settings", "set", "theme", "plain")
	require.NoError(t, err)

	out, _, err := runCLI(t, dir, "settings", "get", "theme")
	require.NoError(t, err)
	assert.Equal(t, "plain\n", out)

	out, _, err = runCLI(t, dir, "settings", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "settings.json")+"\n", out)

	_, _, err = runCLI(t, dir, "settings", "set", "colour", "blue")
	assert.Error(t, err)

	// the log file lands next to the settings file
	assert.FileExists(t, filepath.Join(dir, "logs", "pdf_magic.log"))
}

func writePNG(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for x := 0; x < 20; x++ {
		img.Set(x, 5, color.RGBA{A: 255})
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestImagesToPdfCommand(t *testing.T) {
	dir := t.TempDir()
	in := writePNG(t, filepath.Join(dir, "scan.png"))

	outDir := filepath.Join(dir, "out")
	report := filepath.Join(dir, "report.json")
	_, stderr, err := runCLI(t, dir, "img2pdf", in, "--output-dir", outDir, "--report", report)
	require.NoError(t, err, stderr)

	assert.FileExists(t, filepath.Join(outDir, "scan.pdf"))
	data, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status": "completed"`)
	assert.Contains(t, stderr, "completed")
}

func TestMissingInputFails(t *testing.T) {
	dir := t.TempDir()
	_, stderr, err := runCLI(t, dir, "text", filepath.Join(dir, "nope.pdf"))
	assert.Error(t, err)
	assert.Contains(t, stderr, "nope.pdf")
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "scan.png"))
	writePNG(t, filepath.Join(dir, "photos", "p1.png"))
	writePNG(t, filepath.Join(dir, "photos", "p2.png"))
	jobsFile := filepath.Join(dir, "jobs.yaml")
	require.NoError(t, os.WriteFile(jobsFile, []byte(`
output_dir: out
jobs:
  - name: scans
    operation: img2pdf
    inputs: [scan.png]
  - name: photos
    operation: img2pdf
    inputs: ["photos/*.png"]
    output_dir: out/photos
`), 0o644))

	_, stderr, err := runCLI(t, dir, "batch", jobsFile)
	require.NoError(t, err, stderr)

	assert.FileExists(t, filepath.Join(dir, "out", "scan.pdf"))
	assert.FileExists(t, filepath.Join(dir, "out", "photos", "p1.pdf"))
	assert.FileExists(t, filepath.Join(dir, "out", "photos", "p2.pdf"))
	assert.Contains(t, stderr, "[scans]")
	assert.Contains(t, stderr, "[photos]")
}

func TestBatchCommand_BadJobFailsRun(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "scan.png"))
	jobsFile := filepath.Join(dir, "jobs.yaml")
	require.NoError(t, os.WriteFile(jobsFile, []byte(`
jobs:
  - name: good
    operation: img2pdf
    inputs: [scan.png]
    output_dir: out
  - name: missing
    operation: split
    inputs: [absent.pdf]
`), 0o644))

	_, stderr, err := runCLI(t, dir, "batch", jobsFile)
	require.Error(t, err)
	assert.Contains(t, stderr, "missing:")
	assert.FileExists(t, filepath.Join(dir, "out", "scan.pdf"))
}

// gatedSplit stands in for split: every item waits until release is closed.
type gatedSplit struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedSplit) Kind() types.Operation { return types.OpSplitPdf }

func (g *gatedSplit) Accepts(path string) bool { return strings.HasSuffix(path, ".pdf") }

func (g *gatedSplit) Plan(inputs []string) [][]string {
	items := make([][]string, len(inputs))
	for i, in := range inputs {
		items[i] = []string{in}
	}
	return items
}

func (g *gatedSplit) Apply(ctx context.Context, inputs []string, outDir string) (types.Output, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return types.Output{}, ctx.Err()
	}
	p := filepath.Join(outDir, filepath.Base(inputs[0])+".out")
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		return types.Output{}, err
	}
	return types.Output{Inputs: inputs, Paths: []string{p}}, nil
}

// stubExecution swaps the operation library and signal source for one test.
func stubExecution(t *testing.T, op ops.Operation) <-chan chan<- os.Signal {
	t.Helper()
	registered := make(chan chan<- os.Signal, 1)
	origCatalog, origNotify := newCatalog, notifySignals
	newCatalog = func() runner.Catalog { return ops.NewLibrary(op) }
	notifySignals = func(c chan<- os.Signal) func() {
		registered <- c
		return func() {}
	}
	t.Cleanup(func() { newCatalog, notifySignals = origCatalog, origNotify })
	return registered
}

func TestInterruptCancelsAfterCurrentFile(t *testing.T) {
	dir := t.TempDir()
	var inputs []string
	for _, n := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4"), 0o644))
		inputs = append(inputs, p)
	}
	op := &gatedSplit{started: make(chan struct{}, 1), release: make(chan struct{})}
	registered := stubExecution(t, op)

	go func() {
		sig := <-registered
		<-op.started
		sig <- os.Interrupt
		time.Sleep(300 * time.Millisecond)
		close(op.release)
	}()

	report := filepath.Join(dir, "report.json")
	args := append([]string{"split"}, inputs...)
	_, stderr, err := runCLI(t, dir, append(args, "--report", report)...)
	require.Error(t, err)
	assert.Contains(t, stderr, "cancelling after the current file")
	assert.Contains(t, stderr, "cancelled")

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status": "cancelled"`)

	out := filepath.Join(dir, "Converted_SPLIT")
	assert.FileExists(t, filepath.Join(out, "a.pdf.out"))
	assert.NoFileExists(t, filepath.Join(out, "c.pdf.out"))
}

func TestApplyFlags_ZeroWorkersKeepsSetting(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	addTaskFlags(cmd)
	cfg = types.DefaultSettings()
	cfg.MaxConcurrentConversions = 5

	require.NoError(t, cmd.ParseFlags([]string{"--workers", "0", "--timeout", "-1s"}))
	applyFlags(cmd)
	assert.Equal(t, 5, cfg.MaxConcurrentConversions)
	assert.Zero(t, cfg.ItemTimeout)

	require.NoError(t, cmd.ParseFlags([]string{"--workers", "40"}))
	applyFlags(cmd)
	assert.Equal(t, 16, cfg.MaxConcurrentConversions)
}

func TestFailedFileReportedOnce(t *testing.T) {
	dir := t.TempDir()
	good := writePNG(t, filepath.Join(dir, "good.png"))
	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o644))

	_, stderr, err := runCLI(t, dir, "img2pdf", good, bad, "--output-dir", filepath.Join(dir, "pdfs"))
	require.NoError(t, err, stderr)

	lines := 0
	for _, l := range strings.Split(stderr, "\n") {
		if strings.Contains(l, "bad.png") {
			lines++
		}
	}
	assert.Equal(t, 1, lines, stderr)
	assert.Contains(t, stderr, "(1 file(s) skipped)")
}
