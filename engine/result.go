package engine

import (
	"github.com/c360studio/semguard/constraint"
	"github.com/c360studio/semguard/registry"
	"github.com/c360studio/semguard/semantic"
)

// Status is the terminal state of one file's validation.
type Status string

const (
	StatusPass         Status = "pass"
	StatusWarn         Status = "warn"
	StatusFail         Status = "fail"
	StatusSkip         Status = "skip"
	StatusMissingArch  Status = "missing_arch"
	StatusParseError   Status = "parse_error"
	StatusResolveError Status = "resolve_error"
)

// Errored reports whether the status ends the pipeline before evaluation.
func (s Status) Errored() bool {
	return s == StatusParseError || s == StatusResolveError
}

// Pseudo-rules for warnings the engine raises itself.
const (
	RuleOverride   registry.Rule = "override"
	RuleDeprecated registry.Rule = "deprecated"
)

// ValidationResult is the verdict for one file.
type ValidationResult struct {
	File   string `json:"file"`
	ArchID string `json:"arch_id,omitempty"`
	Status Status `json:"status"`

	// Violations hold error-severity findings; Warnings hold warning and
	// info findings
	Violations []constraint.Violation `json:"violations"`
	Warnings   []constraint.Violation `json:"warnings"`

	ErrorCount   int `json:"error_count"`
	WarningCount int `json:"warning_count"`

	InheritanceChain []string   `json:"inheritance_chain,omitempty"`
	MixinsApplied    []string   `json:"mixins_applied,omitempty"`
	OverridesActive  []Override `json:"overrides_active,omitempty"`

	// Error explains parse_error and resolve_error results
	Error string `json:"error,omitempty"`

	// Suggestions are near-miss architecture ids for resolve_error results
	Suggestions []string `json:"suggestions,omitempty"`

	Language    semantic.Language     `json:"language,omitempty"`
	Imports     []string              `json:"imports,omitempty"`
	Diagnostics []semantic.Diagnostic `json:"diagnostics,omitempty"`

	FromCache bool `json:"from_cache,omitempty"`
}

// add files a finding by severity.
func (r *ValidationResult) add(v constraint.Violation) {
	if v.Severity == registry.SeverityError {
		r.Violations = append(r.Violations, v)
		r.ErrorCount++
		return
	}
	r.Warnings = append(r.Warnings, v)
	r.WarningCount++
}

// settle derives the status from the collected findings.
func (r *ValidationResult) settle() {
	switch {
	case r.ErrorCount > 0:
		r.Status = StatusFail
	case r.WarningCount > 0:
		r.Status = StatusWarn
	default:
		r.Status = StatusPass
	}
}

// Summary totals a batch.
type Summary struct {
	Total           int `json:"total"`
	Passed          int `json:"passed"`
	Failed          int `json:"failed"`
	Warned          int `json:"warned"`
	Skipped         int `json:"skipped"`
	Errored         int `json:"errored"`
	MissingArch     int `json:"missing_arch"`
	TotalErrors     int `json:"total_errors"`
	TotalWarnings   int `json:"total_warnings"`
	ActiveOverrides int `json:"active_overrides"`
}

// BatchResult holds the results of one batch run, in input order.
type BatchResult struct {
	RunID   string              `json:"run_id"`
	Results []*ValidationResult `json:"results"`
	Summary Summary             `json:"summary"`
}

// Failed reports whether any file failed or could not be validated.
func (b *BatchResult) Failed() bool {
	return b.Summary.Failed > 0 || b.Summary.Errored > 0
}

func summarize(results []*ValidationResult) Summary {
	var s Summary
	for _, r := range results {
		s.Total++
		switch r.Status {
		case StatusPass:
			s.Passed++
		case StatusFail:
			s.Failed++
		case StatusWarn:
			s.Warned++
		case StatusSkip:
			s.Skipped++
		case StatusMissingArch:
			s.MissingArch++
		case StatusParseError, StatusResolveError:
			s.Errored++
		}
		s.TotalErrors += r.ErrorCount
		s.TotalWarnings += r.WarningCount
		s.ActiveOverrides += len(r.OverridesActive)
	}
	return s
}
