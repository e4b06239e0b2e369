package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Collect returns the files to upload for the given paths, in order. A regular file is taken as is; a directory is
// walked recursively, skipping hidden entries, editor temp files and anything that is not a regular file.
func Collect(ctx context.Context, logger *logrus.Logger, paths ...string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			if !info.Mode().IsRegular() {
				return nil, fmt.Errorf("%s is not a regular file", p)
			}
			files = append(files, p)
			continue
		}

		walked, err := Walk(ctx, logger, p)
		if err != nil {
			return nil, err
		}
		files = append(files, walked...)
	}
	return files, nil
}

// Walk walks through the given directory recursively and returns every non-hidden regular file in lexical order.
func Walk(ctx context.Context, log *logrus.Logger, rootDir string) ([]string, error) {
	logger := log.WithField("root_dir", rootDir)
	logger.Debug("Walking directory")

	var files []string
	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if strings.HasSuffix(path, "~") {
			// skip temp files created by other apps e.g. editors
			return nil
		}

		if name := filepath.Base(path); path != rootDir && strings.HasPrefix(name, ".") {
			// skip hidden files or directories
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		if !d.Type().IsRegular() {
			// skip irregular files e.g. symlinks
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", rootDir, err)
	}

	logger.WithField("files", len(files)).Debug("Walked directory")
	return files, nil
}
