package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Find searches for a configuration file named after one of
// [DefaultFileNames], starting in dir and walking up to the filesystem root.
// It returns an empty path when no file is found.
func Find(dir string) (string, error) {
	searchDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("get absolute path: %w", err)
	}

	info, err := os.Stat(searchDir)
	if err != nil {
		return "", fmt.Errorf("stat path: %w", err)
	}

	if !info.IsDir() {
		searchDir = filepath.Dir(searchDir)
	}

	for {
		for _, name := range DefaultFileNames {
			path := filepath.Join(searchDir, name)

			info, err := os.Stat(path)
			if err == nil && info.Mode().IsRegular() {
				return path, nil
			}

			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return "", fmt.Errorf("stat %s: %w", path, err)
			}
		}

		parent := filepath.Dir(searchDir)
		if parent == searchDir {
			return "", nil
		}

		searchDir = parent
	}
}

func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s: not a regular file", ErrInvalidConfig, path)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: Potential file inclusion via variable.
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return data, nil
}
