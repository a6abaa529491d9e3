// Package extract unpacks downloaded zip archives.
//
// Extraction is a stateless post-processing step: discover zip payloads
// under a source directory, unpack each under the extraction root
// preserving the relative layout, and record per-file success. One
// archive's failure never aborts the rest.
package extract

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// DefaultDirSuffix names the sibling extraction root derived from the
// source directory when no explicit destination is given.
const DefaultDirSuffix = "_extracted"

// Observer mirrors the download progress contract: completed == 0 is an
// in-progress update for the item named by label, completed > 0 is one
// item's terminal completion.
type Observer func(completed, total int, label string)

// Extractor unpacks zip archives from a source tree.
type Extractor struct {
	observer Observer
	logger   *zap.Logger
}

// New creates an extractor.
func New() *Extractor {
	return &Extractor{logger: zap.NewNop()}
}

// WithObserver sets an optional progress observer.
// Returns the extractor for method chaining.
func (e *Extractor) WithObserver(obs Observer) *Extractor {
	e.observer = obs
	return e
}

// WithLogger sets the logger. Returns the extractor for method chaining.
func (e *Extractor) WithLogger(logger *zap.Logger) *Extractor {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// ExtractAll unpacks every .zip under sourceDir into extractDir,
// preserving each archive's path relative to sourceDir. An empty
// extractDir derives "<sourceDir>_extracted" alongside the source.
// Returns a map from archive path to extraction success.
func (e *Extractor) ExtractAll(ctx context.Context, sourceDir, extractDir string) (map[string]bool, error) {
	archives, err := findArchives(sourceDir)
	if err != nil {
		return nil, err
	}

	results := make(map[string]bool, len(archives))
	if len(archives) == 0 {
		e.logger.Warn("no zip archives found", zap.String("source", sourceDir))
		return results, nil
	}

	if extractDir == "" {
		extractDir = strings.TrimSuffix(filepath.Clean(sourceDir), string(filepath.Separator)) + DefaultDirSuffix
	}
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return nil, fmt.Errorf("create extraction dir: %w", err)
	}

	total := len(archives)
	completed := 0
	for _, archive := range archives {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if e.observer != nil {
			e.observer(0, total, "extracting "+filepath.Base(archive))
		}

		err := e.extractOne(archive, sourceDir, extractDir)
		results[archive] = err == nil
		if err != nil {
			e.logger.Warn("extraction failed",
				zap.String("archive", archive),
				zap.Error(err))
		}

		completed++
		if e.observer != nil {
			e.observer(completed, total, archive)
		}
	}

	return results, nil
}

// findArchives walks sourceDir collecting .zip payloads.
func findArchives(sourceDir string) ([]string, error) {
	var archives []string
	err := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".zip") {
			archives = append(archives, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", sourceDir, err)
	}
	return archives, nil
}

// extractOne unpacks a single archive under extractDir, mirroring its
// position relative to sourceDir.
func (e *Extractor) extractOne(archive, sourceDir, extractDir string) error {
	rel, err := filepath.Rel(sourceDir, archive)
	if err != nil {
		return err
	}
	destDir := filepath.Join(extractDir, filepath.Dir(rel))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if err := writeEntry(f, destDir); err != nil {
			return err
		}
	}
	return nil
}

// writeEntry materializes one archive entry, refusing paths that would
// escape the destination.
func writeEntry(f *zip.File, destDir string) error {
	dest := filepath.Join(destDir, filepath.FromSlash(f.Name))
	if !strings.HasPrefix(dest, filepath.Clean(destDir)+string(filepath.Separator)) {
		return fmt.Errorf("archive entry escapes destination: %s", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(out, src)
	closeErr := out.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}
