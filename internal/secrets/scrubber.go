package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultRedaction replaces each redacted span.
const DefaultRedaction = "[REDACTED]"

var redactionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "coderag",
		Subsystem: "secrets",
		Name:      "redactions_total",
		Help:      "Credentials redacted from indexed content, by rule",
	},
	[]string{"rule"},
)

// Config configures a Scrubber.
type Config struct {
	Rules     []Rule
	Redaction string
	// AllowList holds patterns for matches that are known not to be secrets,
	// such as documented example keys.
	AllowList []string
	// Gitleaks adds the gitleaks default rule set after the regex rules.
	Gitleaks bool
}

// DefaultConfig uses DefaultRules.
func DefaultConfig() Config {
	return Config{Rules: DefaultRules(), Redaction: DefaultRedaction}
}

// Finding locates one redacted credential. The matched text is never kept.
type Finding struct {
	RuleID string
	Start  int
	End    int
	Line   int
}

// Result is the outcome of scrubbing one text.
type Result struct {
	Content  string
	Findings []Finding
}

// Redacted reports whether anything was replaced.
func (r Result) Redacted() bool {
	return len(r.Findings) > 0
}

// RuleIDs returns the distinct rule ids that matched, sorted.
func (r Result) RuleIDs() []string {
	seen := make(map[string]bool, len(r.Findings))
	ids := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		if !seen[f.RuleID] {
			seen[f.RuleID] = true
			ids = append(ids, f.RuleID)
		}
	}
	sort.Strings(ids)
	return ids
}

type compiledRule struct {
	id       string
	pattern  *regexp.Regexp
	keywords []string
}

// Scrubber redacts credentials matching a fixed rule set. It is immutable
// after construction and safe for concurrent use.
type Scrubber struct {
	rules     []compiledRule
	allow     []*regexp.Regexp
	detectors []Detector
	redaction string
}

// New compiles cfg.
func New(cfg Config) (*Scrubber, error) {
	s := &Scrubber{redaction: cfg.Redaction}
	if s.redaction == "" {
		s.redaction = DefaultRedaction
	}

	for i, r := range cfg.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		if r.Pattern == "" {
			return nil, fmt.Errorf("rule %s: pattern is required", r.ID)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid pattern: %w", r.ID, err)
		}
		kws := make([]string, len(r.Keywords))
		for j, kw := range r.Keywords {
			kws[j] = strings.ToLower(kw)
		}
		s.rules = append(s.rules, compiledRule{id: r.ID, pattern: re, keywords: kws})
	}

	for i, p := range cfg.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("allow list entry %d: %w", i, err)
		}
		s.allow = append(s.allow, re)
	}

	if cfg.Gitleaks {
		d, err := NewGitleaksDetector()
		if err != nil {
			return nil, err
		}
		s.detectors = append(s.detectors, d)
	}
	return s, nil
}

// MustDefault returns a Scrubber with DefaultConfig. The default rules are
// known to compile.
func MustDefault() *Scrubber {
	s, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return s
}

// Scrub returns content with every match replaced. Overlapping matches from
// different rules collapse into one redaction.
func (s *Scrubber) Scrub(content string) Result {
	var lower string
	var findings []Finding
	for _, r := range s.rules {
		if len(r.keywords) > 0 {
			if lower == "" {
				lower = strings.ToLower(content)
			}
			if !containsAny(lower, r.keywords) {
				continue
			}
		}
		for _, m := range r.pattern.FindAllStringIndex(content, -1) {
			if s.allowed(content[m[0]:m[1]]) {
				continue
			}
			findings = append(findings, Finding{
				RuleID: r.id,
				Start:  m[0],
				End:    m[1],
				Line:   strings.Count(content[:m[0]], "\n") + 1,
			})
			redactionsTotal.WithLabelValues(r.id).Inc()
		}
	}
	for _, d := range s.detectors {
		for _, f := range d.Detect(content) {
			if s.allowed(content[f.Start:f.End]) {
				continue
			}
			findings = append(findings, f)
			redactionsTotal.WithLabelValues(f.RuleID).Inc()
		}
	}
	if len(findings) == 0 {
		return Result{Content: content}
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Start != findings[j].Start {
			return findings[i].Start < findings[j].Start
		}
		return findings[i].End > findings[j].End
	})

	var b strings.Builder
	b.Grow(len(content))
	pos := 0
	for _, f := range findings {
		if f.End <= pos {
			continue
		}
		if f.Start >= pos {
			b.WriteString(content[pos:f.Start])
			b.WriteString(s.redaction)
		}
		pos = f.End
	}
	b.WriteString(content[pos:])

	return Result{Content: b.String(), Findings: findings}
}

func (s *Scrubber) allowed(match string) bool {
	for _, re := range s.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
