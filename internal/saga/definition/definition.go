// Package definition holds declarative workflow definitions: ordered step
// lists that the saga engine executes. Built-in definitions ship embedded in
// the binary; operators can override or add definitions in a user directory.
package definition

import (
	"fmt"
)

// Source indicates where a definition originated from.
type Source int

const (
	// SourceBuiltIn indicates a definition bundled with the application.
	SourceBuiltIn Source = iota
	// SourceUser indicates a definition from the operator's definitions directory.
	SourceUser
)

// String returns a human-readable representation of the Source.
func (s Source) String() string {
	switch s {
	case SourceBuiltIn:
		return "built-in"
	case SourceUser:
		return "user"
	default:
		return "unknown"
	}
}

// StepKind classifies what a step touches, for reporting and timeouts.
type StepKind string

const (
	StepKindDatabase StepKind = "database"
	StepKindAPI      StepKind = "api"
	StepKindExternal StepKind = "external"
)

// IsValid returns true if the kind is recognized.
func (k StepKind) IsValid() bool {
	switch k {
	case StepKindDatabase, StepKindAPI, StepKindExternal:
		return true
	default:
		return false
	}
}

// StepDefinition describes one step of a workflow.
type StepDefinition struct {
	Name                string   `yaml:"name"`
	Kind                StepKind `yaml:"kind"`
	TargetSystem        string   `yaml:"target_system"`
	Handler             string   `yaml:"handler"`
	CompensationHandler string   `yaml:"compensation_handler"`
	MaxRetries          int      `yaml:"max_retries"`
}

// Definition is an ordered list of steps executed as one saga.
type Definition struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Steps       []StepDefinition `yaml:"steps"`

	// Source and FilePath are set by the loader, not the YAML.
	Source   Source `yaml:"-"`
	FilePath string `yaml:"-"`
}

// Validate checks structural soundness: at least one step, unique step
// names, a handler on every step, and recognized kinds.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("definition missing name")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("definition %q has no steps", d.Name)
	}
	seen := make(map[string]bool, len(d.Steps))
	for i, step := range d.Steps {
		if step.Name == "" {
			return fmt.Errorf("definition %q: step %d missing name", d.Name, i)
		}
		if seen[step.Name] {
			return fmt.Errorf("definition %q: duplicate step name %q", d.Name, step.Name)
		}
		seen[step.Name] = true
		if step.Handler == "" {
			return fmt.Errorf("definition %q: step %q missing handler", d.Name, step.Name)
		}
		if !step.Kind.IsValid() {
			return fmt.Errorf("definition %q: step %q has unknown kind %q", d.Name, step.Name, step.Kind)
		}
		if step.MaxRetries < 0 {
			return fmt.Errorf("definition %q: step %q has negative max_retries", d.Name, step.Name)
		}
	}
	return nil
}

// StepCount returns the number of steps.
func (d *Definition) StepCount() int { return len(d.Steps) }

// Step returns the step at the given zero-based sequence, or nil.
func (d *Definition) Step(sequence int) *StepDefinition {
	if sequence < 0 || sequence >= len(d.Steps) {
		return nil
	}
	return &d.Steps[sequence]
}
