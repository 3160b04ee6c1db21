package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/litcat/litrec/internal/reconcile"
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// exitOnError exits with the code matching err when err is not nil.
func exitOnError(err error, what string) {
	if err != nil {
		exitWithError(exitCodeFor(err), "%s: %v", what, err)
	}
}

// ErrorResponse is the JSON form of a fatal error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// printReportHuman renders a run report for a terminal.
func printReportHuman(r *reconcile.Report) {
	status := "finished"
	if r.Aborted {
		status = "ABORTED: " + r.AbortReason
	}
	outputHuman("%s run %s %s\n", r.Provider, r.RunID, status)
	s := r.Stats
	outputHuman("  received %d: %d created, %d updated, %d matched, %d unchanged, %d duplicate\n",
		s.Received, s.Created, s.Updated, s.Matched, s.Unchanged, s.Duplicates)
	if n := s.Rejected + s.MultiMatch + s.Skipped + s.Failed; n > 0 {
		outputHuman("  not applied %d: %d rejected, %d multi-match, %d skipped, %d failed\n",
			n, s.Rejected, s.MultiMatch, s.Skipped, s.Failed)
	}
	if s.AuthorsLocked > 0 {
		outputHuman("  author lists locked by curators: %d\n", s.AuthorsLocked)
	}
	if len(r.Conflicts) > 0 {
		outputHuman("\nConflicts (%d):\n", len(r.Conflicts))
		for _, c := range r.Conflicts {
			line := fmt.Sprintf("  %-32s %s", c.Kind, c.Subject)
			if len(c.Curies) > 0 {
				line += " [" + strings.Join(c.Curies, ", ") + "]"
			}
			if c.Detail != "" {
				line += ": " + c.Detail
			}
			outputHuman("%s\n", line)
		}
	}
	if len(r.OutOfCorpus) > 0 {
		outputHuman("\nLeft the %s corpus (%d):\n", r.Provider, len(r.OutOfCorpus))
		for _, id := range r.OutOfCorpus {
			outputHuman("  %s\n", id)
		}
	}
	if len(r.Errors) > 0 {
		outputHuman("\nErrors (%d):\n", len(r.Errors))
		for _, e := range r.Errors {
			outputHuman("  %s\n", e)
		}
	}
}
