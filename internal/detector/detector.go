// Package detector scores inbound messages for buying urgency from
// configurable keyword sets.
package detector

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/unclebandit/outreach-engine/internal/model"
)

const (
	keywordPoints    = 15
	multiMatchCount  = 3
	multiMatchBonus  = 20
	exclamationPoint = 5
	exclamationCap   = 15
	questionPoint    = 3
	questionCap      = 10
	maxScore         = 100

	criticalScore = 70
	highScore     = 50

	// DefaultThreshold is the lowest score reported as MEDIUM.
	DefaultThreshold = 30
)

//go:embed keywords.yaml
var defaultKeywords []byte

// Keywords is the classifier configuration.
type Keywords struct {
	Positive []string `yaml:"positive"`
	Negative []string `yaml:"negative"`
}

// Detector is immutable and safe for concurrent use.
type Detector struct {
	positive  []string
	negative  []string
	threshold int
}

// New normalises the keyword sets. A threshold below 1 falls back to
// DefaultThreshold.
func New(kw Keywords, threshold int) (*Detector, error) {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	if threshold > highScore {
		return nil, fmt.Errorf("threshold %d must not exceed %d", threshold, highScore)
	}
	d := &Detector{threshold: threshold}
	var err error
	if d.positive, err = normalise(kw.Positive); err != nil {
		return nil, fmt.Errorf("positive keywords: %w", err)
	}
	if d.negative, err = normalise(kw.Negative); err != nil {
		return nil, fmt.Errorf("negative keywords: %w", err)
	}
	if len(d.positive) == 0 {
		return nil, fmt.Errorf("at least one positive keyword is required")
	}
	return d, nil
}

// Default builds a detector from the embedded keyword sets.
func Default(threshold int) (*Detector, error) {
	return Parse(defaultKeywords, threshold)
}

// LoadFile reads keyword sets from YAML, or the embedded defaults when path
// is empty.
func LoadFile(path string, threshold int) (*Detector, error) {
	if strings.TrimSpace(path) == "" {
		return Default(threshold)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keywords file: %w", err)
	}
	return Parse(raw, threshold)
}

func Parse(raw []byte, threshold int) (*Detector, error) {
	var kw Keywords
	if err := yaml.Unmarshal(raw, &kw); err != nil {
		return nil, fmt.Errorf("parse keywords: %w", err)
	}
	return New(kw, threshold)
}

// Score rates text on a 0..100 scale. Any negative keyword forces 0.
func (d *Detector) Score(text string) model.Score {
	lower := fold(text)
	for _, kw := range d.negative {
		if strings.Contains(lower, kw) {
			return model.Score{Value: 0, Priority: model.PriorityNone}
		}
	}

	matched := 0
	for _, kw := range d.positive {
		if strings.Contains(lower, kw) {
			matched++
		}
	}
	score := matched * keywordPoints
	if matched >= multiMatchCount {
		score += multiMatchBonus
	}
	score += min(exclamationPoint*strings.Count(text, "!"), exclamationCap)
	score += min(questionPoint*strings.Count(text, "?"), questionCap)
	score = max(0, min(score, maxScore))

	return model.Score{Value: score, Priority: d.Classify(score)}
}

// Classify maps a score to its priority.
func (d *Detector) Classify(score int) model.Priority {
	switch {
	case score >= criticalScore:
		return model.PriorityCritical
	case score >= highScore:
		return model.PriorityHigh
	case score >= d.threshold:
		return model.PriorityMedium
	}
	return model.PriorityNone
}

var umlauts = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")

// fold lower-cases s and spells out umlauts and ß, so "Rückruf" and
// "Rueckruf" match the same keyword.
func fold(s string) string {
	return umlauts.Replace(strings.ToLower(s))
}

// normalise folds, trims and de-duplicates keywords.
func normalise(in []string) ([]string, error) {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = fold(strings.TrimSpace(kw))
		if kw == "" {
			return nil, fmt.Errorf("empty keyword")
		}
		if seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out, nil
}
