// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ops

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxSuffix bounds the (n) suffix search.
const maxSuffix = 10000

// ReservePath claims a free file name in dir and returns its path. It tries
// name, then name(1), name(2), ... before the extension, creating each
// candidate exclusively so concurrent writers never receive the same path.
// The reserved file exists and is empty on return. With overwrite set the
// plain name is returned without searching.
func ReservePath(dir, name string, overwrite bool) (string, error) {
	if overwrite {
		return filepath.Join(dir, name), nil
	}
	return claimFree(dir, name, func(p string) error {
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return err
		}
		return f.Close()
	})
}

// ReserveDir is ReservePath for directories. With overwrite set the plain
// directory is created if missing and reused.
func ReserveDir(dir, name string, overwrite bool) (string, error) {
	if overwrite {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(p, 0o755); err != nil {
			return "", fmt.Errorf("creating %s: %w", p, err)
		}
		return p, nil
	}
	return claimFree(dir, name, func(p string) error {
		return os.Mkdir(p, 0o755)
	})
}

func claimFree(dir, name string, claim func(string) error) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < maxSuffix; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s(%d)%s", stem, i, ext)
		}
		p := filepath.Join(dir, candidate)
		err := claim(p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("reserving %s: %w", p, err)
		}
	}
	return "", fmt.Errorf("no free name for %s in %s", name, dir)
}

// writeReserved reserves name in dir and calls write with the path. A
// reservation is released again if write fails. With overwrite set, write
// goes to a temporary file that replaces name only on success, so a failed
// write leaves any existing file untouched.
func writeReserved(dir, name string, overwrite bool, write func(path string) error) (string, error) {
	if overwrite {
		return replaceFile(dir, name, write)
	}
	p, err := ReservePath(dir, name, false)
	if err != nil {
		return "", err
	}
	if err := write(p); err != nil {
		os.Remove(p)
		return "", err
	}
	return p, nil
}

func replaceFile(dir, name string, write func(path string) error) (string, error) {
	final := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	f, err := os.CreateTemp(dir, "."+strings.TrimSuffix(name, ext)+"-*"+ext)
	if err != nil {
		return "", fmt.Errorf("staging %s: %w", final, err)
	}
	tmp := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("staging %s: %w", final, err)
	}

	if err := write(tmp); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("staging %s: %w", final, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("replacing %s: %w", final, err)
	}
	return final, nil
}
