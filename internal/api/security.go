package api

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrPathTraversal is returned when a source path tries to escape the
	// sources directory.
	ErrPathTraversal = errors.New("path traversal detected")

	// ErrInvalidPath is returned when a source path is malformed.
	ErrInvalidPath = errors.New("invalid path")
)

// maxSourcePathLen bounds user-supplied source paths.
const maxSourcePathLen = 4096

// ValidateSourcePath validates a user-supplied document path for an
// index-build job. Paths are relative to the configured sources directory
// and must stay inside it. Returns the cleaned relative path.
func ValidateSourcePath(baseDir, userPath string) (string, error) {
	if userPath == "" {
		return "", fmt.Errorf("%w: path cannot be empty", ErrInvalidPath)
	}
	if len(userPath) > maxSourcePathLen {
		return "", fmt.Errorf("%w: path too long", ErrInvalidPath)
	}
	if strings.ContainsRune(userPath, 0) {
		return "", fmt.Errorf("%w: path contains null byte", ErrInvalidPath)
	}
	if strings.Contains(userPath, "..") {
		return "", fmt.Errorf("%w: path contains '..'", ErrPathTraversal)
	}

	clean := filepath.Clean(userPath)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("%w: path contains '..' after cleaning", ErrPathTraversal)
	}
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: absolute paths not allowed", ErrInvalidPath)
	}

	// Containment check on the resolved path, not string prefixes, so a
	// sibling directory with a shared name prefix cannot slip through.
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve sources directory: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(absBase, clean))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes sources directory", ErrPathTraversal)
	}

	return clean, nil
}
