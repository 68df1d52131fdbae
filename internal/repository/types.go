package repository

import "time"

// Metadata describes where a Document came from. It is copied unchanged onto
// every chunk derived from the Document.
type Metadata struct {
	Repo     string
	Path     string // slash-separated, relative to the repository root
	Size     int64
	Modified time.Time
}

// Document is one qualifying file. Never mutated after creation.
type Document struct {
	Content  string
	Metadata Metadata
}
