// Package script defines the fixed conversation script: an ordered list of
// prompts, each filling one lead field, closed by a terminal sentinel step.
package script

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TerminalField marks the sentinel step that closes a script. Its prompt is
// the message returned once the conversation completes.
const TerminalField = "complete"

// Step is one entry in the script: a position, the field it fills, and the
// prompt shown to the user.
type Step struct {
	Index  int    `json:"index" yaml:"-"`
	Field  string `json:"field" yaml:"field"`
	Prompt string `json:"prompt" yaml:"prompt"`
}

// Script is an immutable ordered sequence of steps. There is no branching:
// every session walks the same steps in the same order.
type Script struct {
	steps []Step
}

// New builds a script from the given steps and validates its shape.
func New(steps []Step) (*Script, error) {
	if len(steps) < 2 {
		return nil, fmt.Errorf("script needs at least one question and a terminal step, got %d steps", len(steps))
	}

	seen := make(map[string]bool, len(steps))
	owned := make([]Step, len(steps))
	for i, st := range steps {
		if st.Field == "" {
			return nil, fmt.Errorf("step %d: field is empty", i)
		}
		if seen[st.Field] {
			return nil, fmt.Errorf("step %d: duplicate field %q", i, st.Field)
		}
		seen[st.Field] = true

		if st.Field == TerminalField && i != len(steps)-1 {
			return nil, fmt.Errorf("step %d: terminal step must be last", i)
		}

		st.Index = i
		owned[i] = st
	}

	if owned[len(owned)-1].Field != TerminalField {
		return nil, fmt.Errorf("last step must have field %q, got %q", TerminalField, owned[len(owned)-1].Field)
	}

	return &Script{steps: owned}, nil
}

// Default returns the compiled-in lead collection script.
func Default() *Script {
	s, err := New([]Step{
		{Field: "name", Prompt: "What is your name?"},
		{Field: "email", Prompt: "What is your email?"},
		{Field: "interest", Prompt: "What service are you interested in?"},
		{Field: TerminalField, Prompt: "Thank you for your information! Our team will contact you soon."},
	})
	if err != nil {
		// The default script is a literal; a validation failure here is a bug.
		panic(err)
	}
	return s
}

type scriptFile struct {
	Steps []Step `yaml:"steps"`
}

// Load reads a script from a YAML file. Changing the conversation is a data
// change, not a code change; the file is read once at startup.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script file: %w", err)
	}

	var f scriptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing script file %s: %w", path, err)
	}

	s, err := New(f.Steps)
	if err != nil {
		return nil, fmt.Errorf("invalid script in %s: %w", path, err)
	}
	return s, nil
}

// Len returns the number of steps, terminal sentinel included.
func (s *Script) Len() int { return len(s.steps) }

// TerminalIndex is the index of the sentinel step; a session whose step
// pointer reaches it is complete.
func (s *Script) TerminalIndex() int { return len(s.steps) - 1 }

// Step returns the step at index i.
func (s *Script) Step(i int) Step { return s.steps[i] }

// Steps returns a copy of all steps in order.
func (s *Script) Steps() []Step {
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}
