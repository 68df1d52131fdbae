package indexer

import (
	"time"
)

// RepositoryStatus is the outcome of indexing one repository.
type RepositoryStatus string

const (
	StatusIndexed RepositoryStatus = "indexed"
	// StatusEmpty means the repository yielded no qualifying documents.
	StatusEmpty  RepositoryStatus = "empty"
	StatusFailed RepositoryStatus = "failed"
)

// RepositorySummary reports what happened to one repository.
type RepositorySummary struct {
	Name            string
	Status          RepositoryStatus
	Documents       int
	FailedDocuments int
	Chunks          int
	FailedChunks    int
	Redactions      int
	Err             error
	Duration        time.Duration
}

// RunSummary reports a whole indexing run.
type RunSummary struct {
	RunID        string
	Collection   string
	Repositories []RepositorySummary
	// Rejected lists configuration entries dropped before processing.
	Rejected []error
	// Points is the number of points the store accepted. Ids consumed by
	// rejected upserts are not reused, so it can be lower than the next id.
	Points   uint64
	Started  time.Time
	Duration time.Duration
}

// Failed returns the repositories that did not complete.
func (s *RunSummary) Failed() []RepositorySummary {
	var out []RepositorySummary
	for _, r := range s.Repositories {
		if r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	return out
}
