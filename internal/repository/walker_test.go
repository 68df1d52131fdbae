package repository

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/coderag/internal/logging"
)

// writeTree creates files relative to root. Parent directories are created.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func collectPaths(seq func(func(Document) bool)) []string {
	var paths []string
	for doc := range seq {
		paths = append(paths, doc.Metadata.Path)
	}
	return paths
}

func TestWalker_FiltersAndPrunes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.md":                          "# demo",
		"main.go":                       "package main",
		"logo.png":                      "\x89PNG",
		"node_modules/lib/index.js":     "module.exports = {}",
		".git/config":                   "[core]",
		"src/pkg/util.py":               "def f(): pass",
		"src/build/generated.go":        "package gen",
		"src/node_modules_keep/keep.ts": "export {}",
	})

	w := NewWalker(DefaultFilter(), nil, 0)
	seq, err := w.Walk(context.Background(), root, "demo")
	require.NoError(t, err)

	paths := collectPaths(seq)
	assert.ElementsMatch(t, []string{"a.md", "main.go", "src/pkg/util.py", "src/node_modules_keep/keep.ts"}, paths)
	for _, p := range paths {
		assert.False(t, strings.Contains(p, "node_modules/"), p)
	}
}

func TestWalker_MetadataIsRelative(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"docs/intro.md": "hello world"})

	seq, err := NewWalker(nil, nil, 0).Walk(context.Background(), root, "demo")
	require.NoError(t, err)

	var docs []Document
	for d := range seq {
		docs = append(docs, d)
	}
	require.Len(t, docs, 1)
	assert.Equal(t, "hello world", docs[0].Content)
	assert.Equal(t, "demo", docs[0].Metadata.Repo)
	assert.Equal(t, "docs/intro.md", docs[0].Metadata.Path)
	assert.Equal(t, int64(len("hello world")), docs[0].Metadata.Size)
	assert.False(t, docs[0].Metadata.Modified.IsZero())
}

func TestWalker_DeterministicAndRestartable(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"b.go":       "package b",
		"a.go":       "package a",
		"z/y/x.md":   "x",
		"z/a.md":     "a",
		"c/d/e/f.go": "package f",
	})

	seq, err := NewWalker(nil, nil, 0).Walk(context.Background(), root, "demo")
	require.NoError(t, err)

	first := collectPaths(seq)
	second := collectPaths(seq)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"a.go", "b.go", "c/d/e/f.go", "z/a.md", "z/y/x.md"}, first)
}

func TestWalker_IsLazy(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.go": "package a", "b.go": "package b", "c.go": "package c"})

	seq, err := NewWalker(nil, nil, 0).Walk(context.Background(), root, "demo")
	require.NoError(t, err)

	var got []string
	for d := range seq {
		got = append(got, d.Metadata.Path)
		break
	}
	assert.Equal(t, []string{"a.go"}, got)
}

func TestWalker_SkipsBadFilesWithoutStopping(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":   "fine",
		"b.txt":   string([]byte{0xff, 0xfe, 0xfd}),
		"big.txt": strings.Repeat("x", 64),
		"c.txt":   "also fine",
	})

	logger := logging.NewTestLogger()
	seq, err := NewWalker(nil, logger.Logger, 32).Walk(context.Background(), root, "demo")
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "c.txt"}, collectPaths(seq))
	assert.Equal(t, 2, logger.Count(zapcore.WarnLevel, "skipping file"))
}

func TestWalker_UnreadableFileIsSkipped(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.md": "a", "secret.md": "s", "z.md": "z"})
	require.NoError(t, os.Chmod(filepath.Join(root, "secret.md"), 0o000))

	logger := logging.NewTestLogger()
	seq, err := NewWalker(nil, logger.Logger, 0).Walk(context.Background(), root, "demo")
	require.NoError(t, err)

	assert.Equal(t, []string{"a.md", "z.md"}, collectPaths(seq))
	logger.AssertLogged(t, zapcore.WarnLevel, "skipping file")
}

func TestWalker_DeepNesting(t *testing.T) {
	root := t.TempDir()
	parts := make([]string, 200)
	for i := range parts {
		parts[i] = "d"
	}
	writeTree(t, root, map[string]string{strings.Join(parts, "/") + "/leaf.go": "package leaf"})

	seq, err := NewWalker(nil, nil, 0).Walk(context.Background(), root, "demo")
	require.NoError(t, err)

	paths := collectPaths(seq)
	require.Len(t, paths, 1)
	assert.True(t, strings.HasSuffix(paths[0], "/leaf.go"))
}

func TestWalker_CancelStopsSequence(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a/a.go": "package a", "b/b.go": "package b"})

	ctx, cancel := context.WithCancel(context.Background())
	seq, err := NewWalker(nil, nil, 0).Walk(ctx, root, "demo")
	require.NoError(t, err)
	cancel()

	assert.Empty(t, collectPaths(seq))
}

func TestWalker_RootErrors(t *testing.T) {
	w := NewWalker(nil, nil, 0)

	_, err := w.Walk(context.Background(), filepath.Join(t.TempDir(), "missing"), "demo")
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.go")
	require.NoError(t, os.WriteFile(file, []byte("package x"), 0o644))
	_, err = w.Walk(context.Background(), file, "demo")
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestWalker_ContentDoesNotAffectSelection(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"x.go": "", "y.go": "package y"})

	seq, err := NewWalker(nil, nil, 0).Walk(context.Background(), root, "demo")
	require.NoError(t, err)

	paths := collectPaths(seq)
	assert.True(t, slices.Contains(paths, "x.go"))
	assert.True(t, slices.Contains(paths, "y.go"))
}
