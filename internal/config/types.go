package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Duration is a non-negative time.Duration decoded from config text. It
// accepts Go duration syntax ("100ms", "2s") and, for env vars such as
// CODERAG_INDEXING_BATCH_DELAY=1500, a bare integer meaning milliseconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	parsed, err := time.ParseDuration(s)
	if err != nil {
		ms, convErr := strconv.ParseInt(s, 10, 64)
		if convErr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		parsed = time.Duration(ms) * time.Millisecond
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", s)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return d.Duration().String()
}

// Secret holds an API key for the embedding, generation or Qdrant endpoint.
// Every fmt verb and JSON encoding print a placeholder; only Value exposes it.
type Secret string

const redacted = "[REDACTED]"

// Value returns the raw credential for the client that needs it.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether a credential was configured.
func (s Secret) IsSet() bool {
	return s != ""
}

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// Format implements fmt.Formatter so %v, %s, %q and %#v all redact.
func (s Secret) Format(f fmt.State, verb rune) {
	switch {
	case verb == 'v' && f.Flag('#'):
		fmt.Fprint(f, "config.Secret("+redacted+")")
	case verb == 'q':
		fmt.Fprint(f, strconv.Quote(s.String()))
	default:
		fmt.Fprint(f, s.String())
	}
}

// MarshalJSON keeps credentials out of JSON-encoded config dumps.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
