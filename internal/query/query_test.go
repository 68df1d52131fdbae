package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/coderag/internal/embeddings"
	"github.com/fyrsmithlabs/coderag/internal/generation"
	"github.com/fyrsmithlabs/coderag/internal/vectorstore"
)

type fixedEmbedder struct {
	vec []float32
	err error
}

func (e fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return e.vec, e.err
}

type recordingGenerator struct {
	text    string
	err     error
	block   bool
	prompts []string
}

func (g *recordingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.block {
		<-ctx.Done()
		return "", fmt.Errorf("%w: %w", generation.ErrUnavailable, ctx.Err())
	}
	return g.text, g.err
}

func newStore(t *testing.T) *vectorstore.Client {
	t.Helper()
	backend, err := vectorstore.NewChromemBackend(vectorstore.ChromemConfig{})
	require.NoError(t, err)
	return vectorstore.NewClient(backend, vectorstore.Options{UpsertInterval: -1}, nil)
}

func seed(t *testing.T, store *vectorstore.Client) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.InitializeCollection(ctx, "code_chunks", 2))
	points := []struct {
		vec     []float32
		repo    string
		path    string
		content string
	}{
		{[]float32{1, 0}, "demo", "cmd/main.go", "func main() {}"},
		{[]float32{0.8, 0.6}, "demo", "README.md", "# Demo"},
		{[]float32{0, 1}, "other", "x.py", "print(1)"},
	}
	for i, p := range points {
		_, err := store.Upsert(ctx, "code_chunks", uint64(i), p.vec, map[string]any{
			"repo": p.repo, "path": p.path, "content": p.content, "chunk_index": 0,
		})
		require.NoError(t, err)
	}
}

func newEngine(t *testing.T, cfg Config, store Searcher, gen Generator) *Engine {
	t.Helper()
	if cfg.Collection == "" {
		cfg.Collection = "code_chunks"
	}
	e, err := New(cfg, fixedEmbedder{vec: []float32{1, 0}}, store, gen, nil)
	require.NoError(t, err)
	return e
}

func TestAnswer_BuildsContextAndTrimsAnswer(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	gen := &recordingGenerator{text: "\n  The entry point is cmd/main.go.\n</answer>\n"}
	e := newEngine(t, Config{TopK: 2}, store, gen)

	ans, err := e.Answer(context.Background(), "  Where is main?  ")
	require.NoError(t, err)

	assert.Equal(t, "The entry point is cmd/main.go.", ans.Answer)
	assert.Equal(t, "demo/cmd/main.go\n\nfunc main() {}\n---\n\ndemo/README.md\n\n# Demo\n---", ans.Context)
	require.Len(t, ans.Sources, 2)
	assert.Equal(t, "cmd/main.go", ans.Sources[0].Path)
	assert.GreaterOrEqual(t, ans.Sources[0].Score, ans.Sources[1].Score)

	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	order := []string{"<instructions>", "demo", "</instructions>", "<context>", ans.Context, "</context>", "<question>", "Where is main?", "</question>", "<answer>"}
	last := -1
	for _, marker := range order {
		i := strings.Index(prompt[last+1:], marker)
		require.GreaterOrEqual(t, i, 0, "missing %q after position %d", marker, last)
		last += 1 + i
	}
	assert.True(t, strings.HasSuffix(strings.TrimSpace(prompt), "<answer>"))
}

func TestAnswer_ConfiguredRepositoriesNamedInPrompt(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	gen := &recordingGenerator{text: "ok"}
	e := newEngine(t, Config{Repositories: []string{"alpha", "beta"}}, store, gen)

	_, err := e.Answer(context.Background(), "q")
	require.NoError(t, err)
	assert.Contains(t, gen.prompts[0], "these repositories: alpha, beta.")
}

func TestAnswer_EmptyCollectionIsNoRelevantContext(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.InitializeCollection(context.Background(), "code_chunks", 2))
	gen := &recordingGenerator{text: "unused"}

	_, err := newEngine(t, Config{}, store, gen).Answer(context.Background(), "anything?")
	assert.ErrorIs(t, err, ErrNoRelevantContext)
	assert.Empty(t, gen.prompts)
}

func TestAnswer_MissingCollectionIsNotIndexed(t *testing.T) {
	gen := &recordingGenerator{}
	_, err := newEngine(t, Config{}, newStore(t), gen).Answer(context.Background(), "anything?")
	assert.ErrorIs(t, err, ErrNotIndexed)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
}

func TestAnswer_InvalidQuestion(t *testing.T) {
	e := newEngine(t, Config{}, newStore(t), &recordingGenerator{})

	_, err := e.Answer(context.Background(), " \t\n")
	assert.ErrorIs(t, err, ErrInvalidQuestion)

	_, err = e.Answer(context.Background(), strings.Repeat("é", MaxQuestionLength+1))
	assert.ErrorIs(t, err, ErrInvalidQuestion)

	_, err = e.Answer(context.Background(), strings.Repeat("é", MaxQuestionLength))
	assert.NotErrorIs(t, err, ErrInvalidQuestion)
}

func TestAnswer_Timeout(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	e := newEngine(t, Config{Timeout: 30 * time.Millisecond}, store, &recordingGenerator{block: true})

	_, err := e.Answer(context.Background(), "slow?")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, UserMessage(ErrTimeout), UserMessage(err))
}

func TestAnswer_GenerationErrorsKeepTheirClass(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	gen := &recordingGenerator{err: fmt.Errorf("%w: status 401", generation.ErrAuthentication)}

	_, err := newEngine(t, Config{}, store, gen).Answer(context.Background(), "q")
	assert.ErrorIs(t, err, generation.ErrAuthentication)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestAnswer_EmbeddingFailure(t *testing.T) {
	e, err := New(Config{Collection: "code_chunks"},
		fixedEmbedder{err: embeddings.ErrUnavailable}, newStore(t), &recordingGenerator{}, nil)
	require.NoError(t, err)

	_, err = e.Answer(context.Background(), "q")
	assert.ErrorIs(t, err, embeddings.ErrUnavailable)
}

func TestExtractAnswer(t *testing.T) {
	tests := map[string]string{
		"  plain  ":                      "plain",
		"<answer>tagged</answer>":        "tagged",
		"text\n</answer>\ntrailing junk": "text",
		"\n\nmulti\nline\n\n":            "multi\nline",
	}
	for in, want := range tests {
		assert.Equal(t, want, extractAnswer(in), "input %q", in)
	}
}

func TestUserMessage_Distinct(t *testing.T) {
	errs := []error{
		ErrInvalidQuestion,
		ErrNotIndexed,
		ErrNoRelevantContext,
		ErrTimeout,
		generation.ErrAuthentication,
		generation.ErrModelAccess,
		generation.ErrUnavailable,
		errors.New("boom"),
	}
	seen := map[string]error{}
	for _, err := range errs {
		msg := UserMessage(fmt.Errorf("wrapped: %w", err))
		require.NotEmpty(t, msg)
		prev, dup := seen[msg]
		assert.False(t, dup, "%v and %v share a message", prev, err)
		seen[msg] = err
	}
	assert.Empty(t, UserMessage(nil))
	assert.NotContains(t, UserMessage(errors.New("sk-secret-value")), "sk-secret")
}
