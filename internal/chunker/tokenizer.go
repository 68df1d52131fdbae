package chunker

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer splits text into token pieces whose concatenation is exactly the
// input. A piece may end inside a multi-byte rune; Split keeps chunk content
// on rune boundaries.
type Tokenizer interface {
	Tokenize(text string) ([]string, error)
}

// TiktokenTokenizer counts tokens with an OpenAI BPE encoding.
type TiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads the named encoding (for example cl100k_base).
//
// When bpeDir is set the rank file is read from bpeDir/<encoding>.tiktoken
// and nothing is downloaded. Otherwise tiktoken-go fetches and caches it on
// first use. tiktoken-go keeps one loader and one loaded encoding per name for
// the whole process, so the first successful load of a name wins.
func NewTiktokenTokenizer(encoding, bpeDir string) (*TiktokenTokenizer, error) {
	if bpeDir != "" {
		tiktoken.SetBpeLoader(DirLoader{Dir: bpeDir})
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %q: %w", encoding, err)
	}
	return &TiktokenTokenizer{encoding: enc}, nil
}

// Tokenize returns one piece per BPE token id, holding that token's raw bytes.
func (t *TiktokenTokenizer) Tokenize(text string) (pieces []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pieces, err = nil, fmt.Errorf("%w: %v", ErrUntokenizable, r)
		}
	}()

	ids := t.encoding.Encode(text, nil, nil)
	pieces = make([]string, len(ids))
	total := 0
	for i, id := range ids {
		pieces[i] = t.encoding.Decode([]int{id})
		total += len(pieces[i])
	}
	if total != len(text) {
		return nil, fmt.Errorf("%w: decoded %d of %d bytes", ErrUntokenizable, total, len(text))
	}
	return pieces, nil
}

// DirLoader reads tiktoken rank files from a local directory instead of
// downloading them.
type DirLoader struct {
	Dir string
}

// LoadTiktokenBpe implements tiktoken.BpeLoader. Only the base name of
// tiktokenBpeFile is used.
func (l DirLoader) LoadTiktokenBpe(tiktokenBpeFile string) (map[string]int, error) {
	name := tiktokenBpeFile
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	f, err := os.Open(filepath.Join(l.Dir, name))
	if err != nil {
		return nil, fmt.Errorf("opening rank file: %w", err)
	}
	defer f.Close()

	ranks := make(map[string]int)
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		tok, rank, ok := strings.Cut(text, " ")
		if !ok {
			return nil, fmt.Errorf("%s:%d: expected \"<base64> <rank>\"", name, line)
		}
		b, err := base64.StdEncoding.DecodeString(tok)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, line, err)
		}
		n, err := strconv.Atoi(rank)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, line, err)
		}
		ranks[string(b)] = n
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading rank file: %w", err)
	}
	return ranks, nil
}

// WordTokenizer treats each run of non-space characters, together with the
// whitespace that follows it, as one token. Leading whitespace joins the first
// token. It needs no model files and is used where exact BPE counts do not
// matter.
type WordTokenizer struct{}

// Tokenize implements Tokenizer.
func (WordTokenizer) Tokenize(text string) ([]string, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: invalid UTF-8", ErrUntokenizable)
	}
	var pieces []string
	start := 0
	prevSpace := true
	seenWord := false
	for i, r := range text {
		space := unicode.IsSpace(r)
		if !space && prevSpace && seenWord {
			pieces = append(pieces, text[start:i])
			start = i
		}
		if !space {
			seenWord = true
		}
		prevSpace = space
	}
	if start < len(text) {
		pieces = append(pieces, text[start:])
	}
	return pieces, nil
}
