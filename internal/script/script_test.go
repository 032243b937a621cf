package script

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultScript(t *testing.T) {
	s := Default()

	if s.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", s.Len())
	}
	if s.TerminalIndex() != 3 {
		t.Errorf("TerminalIndex() = %d, want 3", s.TerminalIndex())
	}

	if got := s.Step(0).Prompt; got != "What is your name?" {
		t.Errorf("step 0 prompt = %q, want %q", got, "What is your name?")
	}
	if got := s.Step(1).Field; got != "email" {
		t.Errorf("step 1 field = %q, want %q", got, "email")
	}
	if got := s.Step(s.TerminalIndex()).Field; got != TerminalField {
		t.Errorf("terminal field = %q, want %q", got, TerminalField)
	}
}

func TestStepIndexesAssigned(t *testing.T) {
	s, err := New([]Step{
		{Field: "color", Prompt: "Favorite color?"},
		{Field: TerminalField, Prompt: "Done."},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i, st := range s.Steps() {
		if st.Index != i {
			t.Errorf("step %d has Index %d", i, st.Index)
		}
	}
}

func TestNewRejectsMissingTerminal(t *testing.T) {
	_, err := New([]Step{
		{Field: "name", Prompt: "Name?"},
		{Field: "email", Prompt: "Email?"},
	})
	if err == nil {
		t.Fatal("expected error for script without terminal step")
	}
}

func TestNewRejectsTerminalNotLast(t *testing.T) {
	_, err := New([]Step{
		{Field: TerminalField, Prompt: "Done."},
		{Field: "name", Prompt: "Name?"},
	})
	if err == nil {
		t.Fatal("expected error for terminal step before the end")
	}
}

func TestNewRejectsDuplicateFields(t *testing.T) {
	_, err := New([]Step{
		{Field: "name", Prompt: "Name?"},
		{Field: "name", Prompt: "Name again?"},
		{Field: TerminalField, Prompt: "Done."},
	})
	if err == nil {
		t.Fatal("expected error for duplicate field")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error = %q, want it to mention 'duplicate'", err.Error())
	}
}

func TestNewRejectsEmptyField(t *testing.T) {
	_, err := New([]Step{
		{Field: "", Prompt: "Anything?"},
		{Field: TerminalField, Prompt: "Done."},
	})
	if err == nil {
		t.Fatal("expected error for empty field")
	}
}

func TestLoadFromYAML(t *testing.T) {
	content := `steps:
  - field: company
    prompt: What company are you with?
  - field: budget
    prompt: What is your budget?
  - field: complete
    prompt: Thanks, we'll be in touch.
`
	path := filepath.Join(t.TempDir(), "script.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	if got := s.Step(0).Field; got != "company" {
		t.Errorf("step 0 field = %q, want %q", got, "company")
	}
	if got := s.Step(1).Prompt; got != "What is your budget?" {
		t.Errorf("step 1 prompt = %q, want %q", got, "What is your budget?")
	}
	if got := s.Step(2).Prompt; got != "Thanks, we'll be in touch." {
		t.Errorf("terminal prompt = %q", got)
	}
}

func TestLoadRejectsInvalidScript(t *testing.T) {
	content := `steps:
  - field: name
    prompt: Name?
`
	path := filepath.Join(t.TempDir(), "script.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for script without terminal step")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestStepsReturnsCopy(t *testing.T) {
	s := Default()
	steps := s.Steps()
	steps[0].Prompt = "mutated"

	if s.Step(0).Prompt == "mutated" {
		t.Error("mutating Steps() result changed the script")
	}
}
