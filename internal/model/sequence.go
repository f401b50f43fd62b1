// internal/model/sequence.go
package model

import "time"

// Step is one timed outreach action inside a sequence.
type Step struct {
	Index      int           `json:"index"`
	Delay      time.Duration `json:"delay"`
	TemplateID string        `json:"template_id"`
	Channel    string        `json:"channel"`
	Terminal   bool          `json:"terminal"`
}

// SequenceDefinition is the ordered list of steps for one sequence type.
type SequenceDefinition struct {
	Type  string `json:"type"`
	Steps []Step `json:"steps"`
}

// StepAt returns the step at cursor, or false once the sequence is exhausted.
func (d SequenceDefinition) StepAt(cursor int) (Step, bool) {
	if cursor < 0 || cursor >= len(d.Steps) {
		return Step{}, false
	}
	return d.Steps[cursor], true
}

// Template is the subject/body pair a step renders.
type Template struct {
	ID      string `yaml:"-" json:"id"`
	Subject string `yaml:"subject" json:"subject"`
	Body    string `yaml:"body" json:"body"`
}
