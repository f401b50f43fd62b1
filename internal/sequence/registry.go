// Package sequence holds the static, data-driven table of outreach sequences
// and the content templates their steps render.
package sequence

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unclebandit/outreach-engine/internal/model"
)

const defaultChannel = "email"

//go:embed defaults.yaml
var defaultsYAML []byte

type fileStep struct {
	Template string `yaml:"template"`
	Delay    string `yaml:"delay"`
	Channel  string `yaml:"channel"`
}

type file struct {
	Templates map[string]model.Template `yaml:"templates"`
	Sequences map[string][]fileStep     `yaml:"sequences"`
}

// Registry resolves sequence types to their steps and template ids to content.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	sequences map[string]model.SequenceDefinition
	templates map[string]model.Template
}

// Default returns the registry built from the embedded defaults.
func Default() (*Registry, error) {
	return Parse(defaultsYAML)
}

// LoadFile reads a registry from a YAML file, falling back to the embedded
// defaults when path is empty.
func LoadFile(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sequences file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Registry, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read sequences: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode sequences: %w", err)
	}

	reg := &Registry{
		sequences: make(map[string]model.SequenceDefinition, len(f.Sequences)),
		templates: make(map[string]model.Template, len(f.Templates)),
	}
	for id, tpl := range f.Templates {
		if strings.TrimSpace(tpl.Body) == "" {
			return nil, fmt.Errorf("template %q has an empty body", id)
		}
		tpl.ID = id
		reg.templates[id] = tpl
	}

	for typ, rawSteps := range f.Sequences {
		if len(rawSteps) == 0 {
			return nil, fmt.Errorf("sequence %q has no steps", typ)
		}
		def := model.SequenceDefinition{Type: typ, Steps: make([]model.Step, len(rawSteps))}
		for i, rs := range rawSteps {
			if _, ok := reg.templates[rs.Template]; !ok {
				return nil, fmt.Errorf("sequence %q step %d: unknown template %q", typ, i, rs.Template)
			}
			delay, err := ParseDelay(rs.Delay)
			if err != nil {
				return nil, fmt.Errorf("sequence %q step %d: %w", typ, i, err)
			}
			channel := strings.TrimSpace(rs.Channel)
			if channel == "" {
				channel = defaultChannel
			}
			def.Steps[i] = model.Step{
				Index:      i,
				Delay:      delay,
				TemplateID: rs.Template,
				Channel:    channel,
				Terminal:   i == len(rawSteps)-1,
			}
		}
		reg.sequences[typ] = def
	}
	return reg, nil
}

// ParseDelay accepts Go durations plus a whole-day suffix, e.g. "3d".
func ParseDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	var d time.Duration
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid delay %q", s)
		}
		d = time.Duration(days) * 24 * time.Hour
	} else {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid delay %q: %w", s, err)
		}
		d = parsed
	}
	if d < 0 {
		return 0, fmt.Errorf("delay %q is negative", s)
	}
	return d, nil
}

func (r *Registry) Sequence(sequenceType string) (model.SequenceDefinition, bool) {
	def, ok := r.sequences[sequenceType]
	return def, ok
}

func (r *Registry) Template(id string) (model.Template, bool) {
	tpl, ok := r.templates[id]
	return tpl, ok
}

// NextDelay returns the delay of the step at cursor, or false when the
// sequence is unknown or exhausted.
func (r *Registry) NextDelay(sequenceType string, cursor int) (time.Duration, bool) {
	def, ok := r.sequences[sequenceType]
	if !ok {
		return 0, false
	}
	step, ok := def.StepAt(cursor)
	if !ok {
		return 0, false
	}
	return step.Delay, true
}

// Types lists the registered sequence types in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.sequences))
	for typ := range r.sequences {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}
