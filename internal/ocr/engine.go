// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ocr recognises text in rendered page images with tesseract, run
// either from a local binary or inside a docker or podman container.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

const (
	binTesseract = "tesseract"
	binDocker    = "docker"
	binPodman    = "podman"
)

// ErrUnavailable is returned by Detect when no engine can run.
var ErrUnavailable = errors.New("no OCR engine available")

// Engine turns an image into text.
type Engine interface {
	// Name identifies the engine ("tesseract", "docker", or "podman").
	Name() string

	// Recognize returns the text found in the image at imagePath.
	// lang is a tesseract language code such as "eng" or "deu+eng".
	// The process is killed when ctx is done.
	Recognize(ctx context.Context, imagePath, lang string) (string, error)
}

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	RunSilent(ctx context.Context, name string, args ...string) error
	RunPiped(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) RunSilent(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

func (o *osExecutor) RunPiped(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", name, ctxErr)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

// localEngine runs a tesseract binary found on PATH.
type localEngine struct {
	exec executor
}

func (l *localEngine) Name() string { return binTesseract }

func (l *localEngine) available(ctx context.Context) bool {
	if _, err := l.exec.LookPath(binTesseract); err != nil {
		return false
	}
	return l.exec.RunSilent(ctx, binTesseract, "--version") == nil
}

func (l *localEngine) Recognize(ctx context.Context, imagePath, lang string) (string, error) {
	var out bytes.Buffer
	args := []string{imagePath, "stdout", "-l", langOrDefault(lang)}
	if err := l.exec.RunPiped(ctx, binTesseract, args, nil, &out); err != nil {
		return "", fmt.Errorf("running tesseract on %s: %w", imagePath, err)
	}
	return out.String(), nil
}

// containerEngine runs tesseract inside a container image. Docker and
// Podman share the logic; they differ in binary name and the subcommand
// used to check image existence.
type containerEngine struct {
	bin           string
	imageCheckCmd []string
	image         string
	exec          executor
}

func (c *containerEngine) Name() string { return c.bin }

func (c *containerEngine) available(ctx context.Context) bool {
	if _, err := c.exec.LookPath(c.bin); err != nil {
		return false
	}
	if c.exec.RunSilent(ctx, c.bin, "info") != nil {
		return false
	}
	return c.imageExists(ctx) == nil
}

func (c *containerEngine) imageExists(ctx context.Context) error {
	args := make([]string, 0, len(c.imageCheckCmd)+1)
	args = append(args, c.imageCheckCmd...)
	args = append(args, c.image)

	if err := c.exec.RunSilent(ctx, c.bin, args...); err != nil {
		return fmt.Errorf("image %s not found in %s: %w", c.image, c.bin, err)
	}
	return nil
}

func (c *containerEngine) Recognize(ctx context.Context, imagePath, lang string) (string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("opening image %s: %w", imagePath, err)
	}
	defer f.Close()

	var out bytes.Buffer
	args := []string{"run", "--rm", "-i", c.image, binTesseract, "stdin", "stdout", "-l", langOrDefault(lang)}
	if err := c.exec.RunPiped(ctx, c.bin, args, f, &out); err != nil {
		return "", fmt.Errorf("running %s container %s: %w", c.bin, c.image, err)
	}
	return out.String(), nil
}

func newDockerEngine(exec executor, image string) *containerEngine {
	return &containerEngine{
		bin:           binDocker,
		imageCheckCmd: []string{"image", "inspect"},
		image:         image,
		exec:          exec,
	}
}

func newPodmanEngine(exec executor, image string) *containerEngine {
	return &containerEngine{
		bin:           binPodman,
		imageCheckCmd: []string{"image", "exists"},
		image:         image,
		exec:          exec,
	}
}

func langOrDefault(lang string) string {
	if lang == "" {
		return "eng"
	}
	return lang
}

var defaultExec = &osExecutor{}

// Detect prefers a local tesseract, then docker, then podman with the given
// container image. It returns ErrUnavailable if none can run.
func Detect(ctx context.Context, image string) (Engine, error) {
	return detect(ctx, defaultExec, image)
}

func detect(ctx context.Context, exec executor, image string) (Engine, error) {
	local := &localEngine{exec: exec}
	if local.available(ctx) {
		return local, nil
	}

	if image != "" {
		docker := newDockerEngine(exec, image)
		if docker.available(ctx) {
			return docker, nil
		}

		podman := newPodmanEngine(exec, image)
		if podman.available(ctx) {
			return podman, nil
		}
	}

	return nil, fmt.Errorf("%w: neither %s nor a %s/%s runtime with image %q is operational",
		ErrUnavailable, binTesseract, binDocker, binPodman, image)
}
