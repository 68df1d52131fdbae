package secrets

import (
	"fmt"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Detector finds credentials that the regex rules do not cover.
type Detector interface {
	Detect(content string) []Finding
}

// GitleaksDetector runs the gitleaks default rule set over a string.
type GitleaksDetector struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// NewGitleaksDetector compiles the gitleaks default config once.
func NewGitleaksDetector() (*GitleaksDetector, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks config: %w", err)
	}
	return &GitleaksDetector{detector: d}, nil
}

// Detect returns one Finding per occurrence of every secret gitleaks reports.
// Spans are located by the secret text rather than gitleaks' line and column,
// so repeated copies of a leaked key are all covered.
func (g *GitleaksDetector) Detect(content string) []Finding {
	g.mu.Lock()
	reported := g.detector.DetectString(content)
	g.mu.Unlock()

	var findings []Finding
	seen := make(map[string]bool, len(reported))
	for _, r := range reported {
		if r.Secret == "" || seen[r.Secret] {
			continue
		}
		seen[r.Secret] = true
		for from := 0; ; {
			i := strings.Index(content[from:], r.Secret)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(r.Secret)
			findings = append(findings, Finding{
				RuleID: r.RuleID,
				Start:  start,
				End:    end,
				Line:   strings.Count(content[:start], "\n") + 1,
			})
			from = end
		}
	}
	return findings
}
