// Package repository turns cloned source repositories into Documents.
//
// It has three parts:
//   - Filter decides which files are indexed (extension allow-list) and which
//     directories are pruned (exact-name exclusion set).
//   - Walker produces a lazy, restartable sequence of Documents using an
//     explicit stack, so deeply nested trees never grow the call stack.
//   - GitFetcher clones a repository when it is absent locally and pulls it
//     otherwise.
//
// # Usage
//
//	w := repository.NewWalker(repository.DefaultFilter(), logger, 1<<20)
//	docs, err := w.Walk(ctx, "/srv/repos/demo", "demo")
//	if err != nil {
//	    return err
//	}
//	for doc := range docs {
//	    fmt.Println(doc.Metadata.Path, doc.Metadata.Size)
//	}
//
// Unreadable, vanished, oversized and non-UTF-8 files are logged and skipped.
// They never stop the walk of their siblings.
package repository
