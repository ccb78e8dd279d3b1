package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/c360studio/semguard/constraint"
	"github.com/c360studio/semguard/engine"
)

const (
	formatText = "text"
	formatJSON = "json"
)

func checkFormat(format string) error {
	switch format {
	case formatText, formatJSON:
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text or json)", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeBatch renders a batch. Passing and skipped files are listed only
// when verbose is set.
func writeBatch(w io.Writer, batch *engine.BatchResult, format string, verbose bool) error {
	if format == formatJSON {
		return writeJSON(w, batch)
	}

	for _, r := range batch.Results {
		writeResult(w, r, verbose)
	}

	s := batch.Summary
	fmt.Fprintf(w, "\n%d files: %d passed, %d failed, %d warned, %d skipped, %d missing @arch, %d errored\n",
		s.Total, s.Passed, s.Failed, s.Warned, s.Skipped, s.MissingArch, s.Errored)
	fmt.Fprintf(w, "%d errors, %d warnings", s.TotalErrors, s.TotalWarnings)
	if s.ActiveOverrides > 0 {
		fmt.Fprintf(w, ", %d active overrides", s.ActiveOverrides)
	}
	fmt.Fprintln(w)
	return nil
}

func writeResult(w io.Writer, r *engine.ValidationResult, verbose bool) {
	switch r.Status {
	case engine.StatusPass, engine.StatusSkip:
		if !verbose {
			return
		}
	}

	fmt.Fprintf(w, "%-13s %s", strings.ToUpper(string(r.Status)), r.File)
	if r.ArchID != "" {
		fmt.Fprintf(w, " [%s]", r.ArchID)
	}
	fmt.Fprintln(w)

	if r.Error != "" {
		fmt.Fprintf(w, "    %s\n", r.Error)
	}
	if len(r.Suggestions) > 0 {
		fmt.Fprintf(w, "    did you mean: %s\n", strings.Join(r.Suggestions, ", "))
	}
	for _, v := range byRank(r.Violations, r.Warnings) {
		writeViolation(w, r.File, v)
	}
}

// byRank merges findings, most severe first, then by line.
func byRank(groups ...[]constraint.Violation) []constraint.Violation {
	var all []constraint.Violation
	for _, g := range groups {
		all = append(all, g...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if ri, rj := all[i].Severity.Rank(), all[j].Severity.Rank(); ri != rj {
			return ri > rj
		}
		return all[i].Line < all[j].Line
	})
	return all
}

func writeViolation(w io.Writer, file string, v constraint.Violation) {
	loc := filepath.ToSlash(file)
	if v.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, v.Line)
	}
	fmt.Fprintf(w, "    %-7s %s  %s (%s)\n", v.Severity, loc, v.Message, v.Rule)
	if v.Why != "" {
		fmt.Fprintf(w, "            why: %s\n", v.Why)
	}
	if v.FixHint != "" {
		fmt.Fprintf(w, "            fix: %s\n", v.FixHint)
	}
	if v.DidYouMean != nil {
		fmt.Fprintf(w, "            use: %s", v.DidYouMean.File)
		if v.DidYouMean.Export != "" {
			fmt.Fprintf(w, " (%s)", v.DidYouMean.Export)
		}
		fmt.Fprintln(w)
	}
}

// writeResolved renders a flattened architecture.
func writeResolved(w io.Writer, res *engine.ResolveResult, format string) error {
	if format == formatJSON {
		return writeJSON(w, res)
	}

	fmt.Fprintf(w, "%s\n", res.ArchID)
	if res.Description != "" {
		fmt.Fprintf(w, "  %s\n", res.Description)
	}
	fmt.Fprintf(w, "  chain:  %s\n", strings.Join(res.Chain, " -> "))
	if len(res.MixinsApplied) > 0 {
		fmt.Fprintf(w, "  mixins: %s\n", strings.Join(res.MixinsApplied, ", "))
	}
	if res.Deprecation != nil {
		fmt.Fprintf(w, "  deprecated from %s", res.Deprecation.From)
		if res.Deprecation.MigrationGuide != "" {
			fmt.Fprintf(w, ": %s", res.Deprecation.MigrationGuide)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "\nconstraints:")
	for _, c := range res.Constraints {
		value := "(invalid)"
		if c.Constraint.Value != nil {
			value = c.Constraint.Value.String()
		}
		fmt.Fprintf(w, "  %-7s %s %s  <- %s\n", c.Constraint.Severity, c.Constraint.Rule, value, c.Source)
	}

	if len(res.Conflicts) > 0 {
		fmt.Fprintln(w, "\nconflicts:")
		for _, c := range res.Conflicts {
			fmt.Fprintf(w, "  %s %s: %s wins over %s (%s)\n", c.Rule, c.Value, c.Winner, c.Overridden, c.Resolution)
		}
	}

	if len(res.Hints) > 0 {
		fmt.Fprintln(w, "\nhints:")
		for _, h := range res.Hints {
			fmt.Fprintf(w, "  - %s\n", h.Text)
		}
	}
	return nil
}

// relativeTo maps command-line paths, which may be absolute or relative to
// the working directory, onto paths relative to root.
func relativeTo(root string, paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			out = append(out, p)
			continue
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			out = append(out, p)
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}
