package query

import (
	"errors"

	"github.com/fyrsmithlabs/coderag/internal/embeddings"
	"github.com/fyrsmithlabs/coderag/internal/generation"
)

var (
	// ErrInvalidQuestion means the question is empty or too long.
	ErrInvalidQuestion = errors.New("invalid question")

	// ErrNotIndexed means the collection does not exist yet.
	ErrNotIndexed = errors.New("nothing has been indexed")

	// ErrNoRelevantContext means search returned no chunks. It is an
	// outcome, not a system failure.
	ErrNoRelevantContext = errors.New("no relevant context found")

	// ErrTimeout means the whole answer exceeded its time budget.
	ErrTimeout = errors.New("answer timed out")
)

// UserMessage turns an Answer error into text fit for an end user. It never
// includes the underlying error text.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidQuestion):
		return "Please ask a non-empty question of at most 4096 characters."
	case errors.Is(err, ErrNotIndexed):
		return "Nothing has been indexed yet. Run the indexer before asking questions."
	case errors.Is(err, ErrNoRelevantContext):
		return "No indexed content matched your question. Try rephrasing it or indexing more repositories."
	case errors.Is(err, ErrTimeout):
		return "Answering took too long. Please try again."
	case errors.Is(err, generation.ErrAuthentication):
		return "The answer service rejected its credentials. Ask an administrator to check the API key."
	case errors.Is(err, generation.ErrModelAccess):
		return "The configured answer model is not available to this account."
	case errors.Is(err, generation.ErrUnavailable),
		errors.Is(err, generation.ErrEmptyResponse),
		errors.Is(err, embeddings.ErrUnavailable):
		return "The answer model is temporarily unavailable. Please try again later."
	default:
		return "Something went wrong while answering your question."
	}
}
