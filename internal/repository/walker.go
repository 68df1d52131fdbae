package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coderag/internal/logging"
)

// ErrNotDirectory is returned when the walk root is not a directory.
var ErrNotDirectory = errors.New("repository root is not a directory")

// Walker lists qualifying files under a repository root.
type Walker struct {
	filter      *Filter
	logger      *logging.Logger
	maxFileSize int64
}

// NewWalker creates a walker. maxFileSize <= 0 disables the size check.
func NewWalker(filter *Filter, logger *logging.Logger, maxFileSize int64) *Walker {
	if filter == nil {
		filter = DefaultFilter()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Walker{filter: filter, logger: logger, maxFileSize: maxFileSize}
}

// Walk validates rootPath and returns a lazy sequence of Documents under it.
//
// Nothing is read until the sequence is ranged over, and every range starts a
// fresh traversal. Order is depth-first with entries sorted by name, so an
// unchanged tree always yields the same order. Cancelling ctx ends the
// sequence early.
func (w *Walker) Walk(ctx context.Context, rootPath, repoName string) (iter.Seq[Document], error) {
	root, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to access repository root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	return func(yield func(Document) bool) {
		w.walk(ctx, root, repoName, yield)
	}, nil
}

func (w *Walker) walk(ctx context.Context, root, repoName string, yield func(Document) bool) {
	stack := []string{root}
	for len(stack) > 0 {
		if ctx.Err() != nil {
			return
		}
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			w.logger.Warn(ctx, "skipping unreadable directory",
				zap.String("dir", w.rel(root, dir)), zap.Error(err))
			continue
		}

		var subdirs []string
		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			switch {
			case entry.IsDir():
				if w.filter.ShouldExcludeDir(entry.Name()) {
					w.logger.Trace(ctx, "pruned directory", zap.String("dir", w.rel(root, full)))
					continue
				}
				subdirs = append(subdirs, full)
			case entry.Type()&fs.ModeSymlink != 0, !entry.Type().IsRegular():
				// Symlinks may point outside the repository.
				continue
			case !w.filter.ShouldProcess(entry.Name()):
				continue
			default:
				doc, err := w.read(root, full, repoName)
				if err != nil {
					w.logger.Warn(ctx, "skipping file",
						zap.String("path", w.rel(root, full)), zap.Error(err))
					continue
				}
				if !yield(doc) {
					return
				}
			}
		}

		// Reverse push keeps lexical pre-order when popping.
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}
}

// errSkipped marks files that are intentionally not indexed.
var errSkipped = errors.New("skipped")

func (w *Walker) read(root, path, repoName string) (Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Document{}, fmt.Errorf("stat: %w", err)
	}
	if w.maxFileSize > 0 && info.Size() > w.maxFileSize {
		return Document{}, fmt.Errorf("%w: %d bytes exceeds limit of %d", errSkipped, info.Size(), w.maxFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read: %w", err)
	}
	if !utf8.Valid(content) {
		return Document{}, fmt.Errorf("%w: content is not valid UTF-8", errSkipped)
	}
	return Document{
		Content: string(content),
		Metadata: Metadata{
			Repo:     repoName,
			Path:     w.rel(root, path),
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		},
	}, nil
}

func (w *Walker) rel(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
