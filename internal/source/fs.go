// Package source provides the read-only document source consumed by the
// indexing pipeline: file enumeration under a root path filtered by
// extension, UTF-8-validated text reading, and lightweight metadata
// extraction for the file types common in data-engineering repos
// (markdown docs, dbt schema YAML).
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/davidamom/neuralflake/internal/domain"
)

// FS is a filesystem document source.
type FS struct {
	extensions map[string]struct{}
}

// NewFS creates a filesystem source recognizing the given extensions
// (lowercase, dot-prefixed, e.g. ".md").
func NewFS(extensions []string) *FS {
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		set[strings.ToLower(ext)] = struct{}{}
	}
	return &FS{extensions: set}
}

// List walks the tree under root and returns the relative paths of all
// regular files whose extension is recognized, sorted for deterministic
// ingest order. Hidden directories (".git", ".dbt", editor state) are
// skipped entirely.
func (f *FS) List(ctx context.Context, root string) ([]string, error) {
	var paths []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path %s: %w", path, err)
		}

		if info.IsDir() {
			if name := info.Name(); strings.HasPrefix(name, ".") && path != root {
				return filepath.SkipDir
			}
			// Check for cancellation at directory boundaries.
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return nil
		}

		if _, ok := f.extensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}
		paths = append(paths, filepath.ToSlash(relPath))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan source root %s: %w", root, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// Read loads one document by its path relative to root. The content must be
// valid UTF-8; anything else fails with domain.ErrUnsupportedEncoding rather
// than silently corrupting the text. Metadata (title, dbt models) is
// extracted according to the file type.
func (f *FS) Read(root, relPath string) (domain.Document, error) {
	absPath := filepath.Join(root, filepath.FromSlash(relPath))

	content, err := os.ReadFile(absPath)
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to read file %s: %w", relPath, err)
	}
	if !utf8.Valid(content) {
		return domain.Document{}, fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrUnsupportedEncoding, relPath)
	}

	text := string(content)
	fileType := strings.ToLower(filepath.Ext(relPath))

	doc := domain.Document{
		Path:     relPath,
		Text:     text,
		FileType: fileType,
		Size:     utf8.RuneCountInString(text),
	}

	switch fileType {
	case ".md":
		doc.Title = markdownTitle(content, relPath)
	case ".yml", ".yaml":
		doc.Models = dbtModels(content)
	}

	return doc, nil
}
