package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
)

// CreateTarGz creates a tar.gz archive from a source directory.
// The baseDir parameter specifies the directory name inside the archive.
// If createParentDir is true, parent directories of dstPath are created.
func CreateTarGz(srcDir, dstPath, baseDir string, createParentDir bool) error {
	if createParentDir {
		if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
			return fmt.Errorf("failed to create parent directory: %w", err)
		}
	}

	outFile, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer outFile.Close()

	gw := gzip.NewWriter(outFile)
	defer gw.Close()

	return writeTree(tar.NewWriter(gw), srcDir, baseDir)
}

// CreateTarXz creates a tar.xz archive from a source directory.
func CreateTarXz(srcDir, dstPath, baseDir string) error {
	outFile, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer outFile.Close()

	xw, err := xz.NewWriter(outFile)
	if err != nil {
		return fmt.Errorf("xz writer: %w", err)
	}
	defer xw.Close()

	return writeTree(tar.NewWriter(xw), srcDir, baseDir)
}

// CreateBundle packs a resource directory into a bundle archive, choosing
// the compression from the destination suffix (.tar.xz or .tar.gz). The
// directory name inside the archive is derived from the destination name.
func CreateBundle(srcDir, dstPath string) error {
	baseDir := filepath.Base(dstPath)
	baseDir = strings.TrimSuffix(strings.TrimSuffix(baseDir, ".tar.xz"), ".tar.gz")

	switch {
	case strings.HasSuffix(dstPath, ".tar.xz"):
		return CreateTarXz(srcDir, dstPath, baseDir)
	case strings.HasSuffix(dstPath, ".tar.gz"):
		return CreateTarGz(srcDir, dstPath, baseDir, false)
	default:
		return fmt.Errorf("unsupported bundle format: %s", dstPath)
	}
}

// writeTree walks srcDir into the tar writer and closes it.
func writeTree(tw *tar.Writer, srcDir, baseDir string) error {
	defer tw.Close()

	now := time.Now()

	err := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		// Skip root directory
		if relPath == "." {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}

		// Set the name with the base directory prefix
		header.Name = baseDir + "/" + relPath
		if info.IsDir() {
			header.Name += "/"
		}

		// Normalize timestamps for reproducibility
		header.ModTime = now

		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if !info.IsDir() {
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()

			if _, err := io.Copy(tw, file); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	return nil
}
