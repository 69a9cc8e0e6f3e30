// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package jobs reads batch files: YAML lists of conversion jobs that the
// batch command submits together.
package jobs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pdf-magic/pkg/types"
)

// ErrEmpty is returned for a batch file without jobs.
var ErrEmpty = errors.New("batch file has no jobs")

// File is the on-disk batch description.
//
//	output_dir: out
//	jobs:
//	  - name: contracts
//	    operation: docx
//	    inputs: [contracts/*.pdf]
//	  - operation: merge
//	    inputs: [a.pdf, b.pdf]
//	    output_dir: merged
type File struct {
	// OutputDir applies to jobs that leave output_dir unset.
	OutputDir string `yaml:"output_dir,omitempty"`
	Jobs      []Job  `yaml:"jobs"`
}

// Job is one task to submit.
type Job struct {
	Name      string          `yaml:"name,omitempty"`
	Operation types.Operation `yaml:"operation"`
	// Inputs may contain glob patterns; matches are sorted.
	Inputs    []string `yaml:"inputs"`
	OutputDir string   `yaml:"output_dir,omitempty"`
}

// Load reads a batch file. Relative paths are resolved against the file's
// directory, globs are expanded, and operations are checked.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing batch file: %w", err)
	}
	if len(f.Jobs) == 0 {
		return nil, ErrEmpty
	}

	base := filepath.Dir(path)
	f.OutputDir = resolve(base, f.OutputDir)
	for i := range f.Jobs {
		j := &f.Jobs[i]
		if j.Name == "" {
			j.Name = fmt.Sprintf("job%d", i+1)
		}
		if _, err := types.ParseOperation(string(j.Operation)); err != nil {
			return nil, fmt.Errorf("%s: %w", j.Name, err)
		}
		inputs, err := expand(base, j.Inputs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", j.Name, err)
		}
		j.Inputs = inputs
		if j.OutputDir == "" {
			j.OutputDir = f.OutputDir
		} else {
			j.OutputDir = resolve(base, j.OutputDir)
		}
	}
	return &f, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// expand resolves each input and expands glob patterns. A pattern that
// matches nothing is kept as written so the submit step reports it.
func expand(base string, inputs []string) ([]string, error) {
	var out []string
	for _, in := range inputs {
		p := resolve(base, in)
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", in, err)
		}
		if len(matches) == 0 {
			out = append(out, p)
			continue
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}
