// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/joho/godotenv"
)

// LoadEnvFile exports the variables in a dotenv file that are not already
// set in the environment and returns their names, sorted. A missing file
// yields no keys and no error.
func LoadEnvFile(path string) ([]string, error) {
	vars, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
