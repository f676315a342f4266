// Package filex holds small filesystem helpers shared by the upload
// assembler and the workers: scratch directory creation, best-effort
// cleanup, and filename sanitization.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates dir (and parents) if it does not exist and returns it.
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// SanitizeBasename reduces name to a safe file basename: path components
// are stripped and any remaining separator characters are replaced, so a
// declared filename can never escape the scratch directory.
func SanitizeBasename(name string) string {
	if name == "" {
		return "upload"
	}
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, "/", "_")
	base = strings.ReplaceAll(base, "\\", "_")
	if base == "." || base == ".." || base == "" {
		return "upload"
	}
	return base
}

// RemoveQuiet deletes the file at path, ignoring any error. Scratch files
// are best-effort cleanup; a leftover must never fail the pipeline.
func RemoveQuiet(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// RemoveAllQuiet deletes the directory tree at path, ignoring any error.
func RemoveAllQuiet(path string) {
	if path == "" {
		return
	}
	_ = os.RemoveAll(path)
}
