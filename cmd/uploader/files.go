package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// collectFiles expands directories recursively, skipping hidden entries.
// Files named explicitly are always included so the queue can report why
// they were rejected.
func collectFiles(paths []string) ([]domain.SourceFile, error) {
	var files []domain.SourceFile
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			files = append(files, sourceFile(root, info.Size()))
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if path != root && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			files = append(files, sourceFile(path, info.Size()))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	return files, nil
}

func sourceFile(path string, size int64) domain.SourceFile {
	return domain.SourceFile{
		Name: path,
		Size: size,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}
