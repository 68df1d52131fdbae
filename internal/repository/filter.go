package repository

import (
	"path/filepath"
	"strings"
)

// DefaultCodeExtensions are source files indexed by default.
var DefaultCodeExtensions = []string{
	".go", ".py", ".js", ".jsx", ".ts", ".tsx", ".java", ".kt", ".rs",
	".c", ".h", ".cpp", ".hpp", ".cs", ".rb", ".php", ".swift", ".scala",
	".sh", ".sql", ".yaml", ".yml", ".toml", ".json",
}

// DefaultDocExtensions are documentation files indexed by default.
var DefaultDocExtensions = []string{".md", ".mdx", ".rst", ".txt", ".adoc"}

// DefaultExcludedDirs are pruned wherever they appear.
var DefaultExcludedDirs = []string{
	".git", ".svn", ".hg",
	"node_modules", "vendor", ".venv", "venv", "__pycache__",
	".idea", ".vscode", ".cache",
	"dist", "build", ".next", "target",
}

// Filter decides what the walker reads. It is stateless after construction
// and safe for concurrent use.
type Filter struct {
	extensions map[string]bool
	excluded   map[string]bool
}

// NewFilter builds a filter. Extensions are matched case-insensitively and
// may be given with or without the leading dot.
func NewFilter(codeExts, docExts, excludedDirs []string) *Filter {
	f := &Filter{
		extensions: make(map[string]bool, len(codeExts)+len(docExts)),
		excluded:   make(map[string]bool, len(excludedDirs)),
	}
	for _, set := range [][]string{codeExts, docExts} {
		for _, ext := range set {
			ext = strings.ToLower(ext)
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			f.extensions[ext] = true
		}
	}
	for _, d := range excludedDirs {
		f.excluded[d] = true
	}
	return f
}

// DefaultFilter returns a filter over the default sets.
func DefaultFilter() *Filter {
	return NewFilter(DefaultCodeExtensions, DefaultDocExtensions, DefaultExcludedDirs)
}

// ShouldProcess reports whether the lowercase extension of path is allowed.
func (f *Filter) ShouldProcess(path string) bool {
	return f.extensions[strings.ToLower(filepath.Ext(path))]
}

// ShouldExcludeDir reports whether a directory name exactly matches an
// exclusion token. No wildcard matching.
func (f *Filter) ShouldExcludeDir(name string) bool {
	return f.excluded[name]
}
