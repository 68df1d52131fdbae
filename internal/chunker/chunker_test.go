package chunker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/coderag/internal/logging"
	"github.com/fyrsmithlabs/coderag/internal/repository"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func doc(content string) repository.Document {
	return repository.Document{
		Content: content,
		Metadata: repository.Metadata{
			Repo:     "demo",
			Path:     "src/a.go",
			Size:     int64(len(content)),
			Modified: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	}
}

func newChunker(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := New(WordTokenizer{}, size, overlap, nil)
	require.NoError(t, err)
	return c
}

// reconstruct undoes the overlap by dropping each chunk's leading overlap tokens.
func reconstruct(t *testing.T, chunks []Chunk) string {
	t.Helper()
	var b strings.Builder
	prevEnd := 0
	for _, ch := range chunks {
		tokens, err := WordTokenizer{}.Tokenize(ch.Content)
		require.NoError(t, err)
		skip := prevEnd - ch.StartToken
		b.WriteString(strings.Join(tokens[skip:], ""))
		prevEnd = ch.EndToken
	}
	return b.String()
}

func TestSplit_2500TokensGivesThreeWindows(t *testing.T) {
	c := newChunker(t, DefaultChunkSize, DefaultOverlap)

	chunks, err := c.Split(doc(words(2500)))
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	ranges := make([][2]int, len(chunks))
	for i, ch := range chunks {
		ranges[i] = [2]int{ch.StartToken, ch.EndToken}
		assert.Equal(t, i, ch.Index)
	}
	assert.Equal(t, [][2]int{{0, 1000}, {800, 1800}, {1600, 2500}}, ranges)

	assert.True(t, strings.HasPrefix(chunks[0].Content, "w0 "))
	assert.True(t, strings.HasPrefix(chunks[1].Content, "w800 "))
	assert.True(t, strings.HasSuffix(chunks[2].Content, "w2499"))
}

func TestSplit_RoundTripAndOverlap(t *testing.T) {
	tests := []struct {
		name          string
		tokens        int
		size, overlap int
	}{
		{"exact multiple", 1000, 100, 20},
		{"ragged tail", 1234, 100, 20},
		{"no overlap", 503, 50, 0},
		{"max overlap", 40, 10, 9},
		{"one token", 1, 10, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "  " + words(tt.tokens) + "\n"
			c := newChunker(t, tt.size, tt.overlap)

			chunks, err := c.Split(doc(content))
			require.NoError(t, err)
			require.NotEmpty(t, chunks)

			assert.Equal(t, content, reconstruct(t, chunks))
			for i, ch := range chunks {
				assert.NotEmpty(t, ch.Content)
				assert.LessOrEqual(t, ch.EndToken-ch.StartToken, tt.size)
				if i > 0 {
					assert.Equal(t, tt.overlap, chunks[i-1].EndToken-ch.StartToken)
				}
			}
		})
	}
}

func TestSplit_ShortDocumentIsOneChunk(t *testing.T) {
	c := newChunker(t, DefaultChunkSize, DefaultOverlap)
	d := doc(words(50))

	chunks, err := c.Split(d)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, d.Content, chunks[0].Content)
	assert.Equal(t, d.Metadata, chunks[0].Metadata)
}

func TestSplit_EmptyDocumentHasNoChunks(t *testing.T) {
	c := newChunker(t, DefaultChunkSize, DefaultOverlap)

	chunks, err := c.Split(doc(""))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplit_MetadataCopiedToEveryChunk(t *testing.T) {
	c := newChunker(t, 10, 3)
	d := doc(words(95))

	chunks, err := c.Split(d)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.Equal(t, d.Metadata, ch.Metadata)
	}
}

func TestNew_RejectsBadWindow(t *testing.T) {
	for _, w := range [][2]int{{100, 100}, {100, 150}, {0, 0}, {10, -1}} {
		_, err := New(WordTokenizer{}, w[0], w[1], nil)
		assert.ErrorIs(t, err, ErrInvalidWindow, "size=%d overlap=%d", w[0], w[1])
	}
	_, err := New(nil, 10, 1, nil)
	assert.Error(t, err)
}

type failingTokenizer struct {
	failOn string
}

func (f failingTokenizer) Tokenize(text string) ([]string, error) {
	if strings.Contains(text, f.failOn) {
		return nil, ErrUntokenizable
	}
	return WordTokenizer{}.Tokenize(text)
}

func TestSplitAll_SkipsFailingDocuments(t *testing.T) {
	logger := logging.NewTestLogger()
	c, err := New(failingTokenizer{failOn: "BAD"}, 10, 2, logger.Logger)
	require.NoError(t, err)

	docs := slices.Values([]repository.Document{
		doc("good one"),
		doc("BAD content"),
		doc("good two"),
	})

	var got []string
	for ch := range c.SplitAll(context.Background(), docs) {
		got = append(got, ch.Content)
	}
	assert.Equal(t, []string{"good one", "good two"}, got)
	logger.AssertLogged(t, zapcore.WarnLevel, "failed to chunk")
}

func TestWordTokenizer(t *testing.T) {
	tests := map[string][]string{
		"":              nil,
		"a":             {"a"},
		"a b":           {"a ", "b"},
		"  lead\ttab\n": {"  lead\t", "tab\n"},
		"   ":           {"   "},
		"héllo wörld":   {"héllo ", "wörld"},
	}
	for in, want := range tests {
		got, err := WordTokenizer{}.Tokenize(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "%q", in)
	}

	_, err := WordTokenizer{}.Tokenize(string([]byte{0xff}))
	assert.True(t, errors.Is(err, ErrUntokenizable))
}

// testdata/cl100k_base.tiktoken is a tiny byte-level rank table: every byte,
// plus merges that split "😀" (F0 9F 98 80) into two tokens.
func testTiktoken(t *testing.T) *TiktokenTokenizer {
	t.Helper()
	tok, err := NewTiktokenTokenizer("cl100k_base", "testdata")
	require.NoError(t, err)
	return tok
}

func TestTiktokenTokenizer_RoundTrip(t *testing.T) {
	tok := testTiktoken(t)

	text := "func main() {\n\tfmt.Println(\"héllo, 世界 😀\")\n}\n"
	pieces, err := tok.Tokenize(text)
	require.NoError(t, err)
	assert.Equal(t, text, strings.Join(pieces, ""))
	assert.Len(t, pieces, len(tok.encoding.Encode(text, nil, nil)))
}

func TestTiktokenTokenizer_OnePiecePerTokenID(t *testing.T) {
	tok := testTiktoken(t)

	pieces, err := tok.Tokenize("😀")
	require.NoError(t, err)
	require.Len(t, pieces, 2)
	assert.Equal(t, "\xf0\x9f", pieces[0])
	assert.Equal(t, "\x98\x80", pieces[1])
}

func TestSplit_MultiByteWindowsStayWithinTokenBudget(t *testing.T) {
	tok := testTiktoken(t)
	c, err := New(tok, 5, 3, nil)
	require.NoError(t, err)

	text := strings.Repeat("😀", 40)
	chunks, err := c.Split(doc(text))
	require.NoError(t, err)

	// 80 token ids, windows of 5 advancing by 2.
	require.Len(t, chunks, 39)
	for _, ch := range chunks {
		assert.True(t, utf8.ValidString(ch.Content))
		assert.LessOrEqual(t, ch.EndToken-ch.StartToken, 5)
		ids := tok.encoding.Encode(ch.Content, nil, nil)
		assert.LessOrEqual(t, len(ids), 5, "chunk %d holds %d tokens", ch.Index, len(ids))
		assert.Equal(t, "😀😀", ch.Content)
	}
}

func TestSplit_RuneCutWithoutOverlapOpensNextChunk(t *testing.T) {
	tok := testTiktoken(t)
	c, err := New(tok, 5, 0, nil)
	require.NoError(t, err)

	text := strings.Repeat("😀", 40)
	chunks, err := c.Split(doc(text))
	require.NoError(t, err)

	var got strings.Builder
	for _, ch := range chunks {
		assert.True(t, utf8.ValidString(ch.Content))
		got.WriteString(ch.Content)
	}
	assert.Equal(t, text, got.String())
	assert.Equal(t, "😀😀", chunks[0].Content)
	assert.Equal(t, "😀😀😀", chunks[1].Content)
}

func TestDirLoader(t *testing.T) {
	ranks, err := DirLoader{Dir: "testdata"}.LoadTiktokenBpe("https://example.com/encodings/cl100k_base.tiktoken")
	require.NoError(t, err)
	assert.Len(t, ranks, 260)
	assert.Equal(t, 256, ranks["\xf0\x9f"])

	_, err = DirLoader{Dir: t.TempDir()}.LoadTiktokenBpe("cl100k_base.tiktoken")
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.tiktoken"), []byte("YQ==\n"), 0o600))
	_, err = DirLoader{Dir: dir}.LoadTiktokenBpe("bad.tiktoken")
	assert.ErrorContains(t, err, "bad.tiktoken:1")
}
