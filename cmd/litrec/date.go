package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/litcat/litrec/internal/pubdate"
)

// DateResult is one normalized date string.
type DateResult struct {
	Input string `json:"input"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
	Error string `json:"error,omitempty"`
}

func init() {
	rootCmd.AddCommand(dateCmd)
}

var dateCmd = &cobra.Command{
	Use:   "date <text>...",
	Short: "Normalize free-text publication dates",
	Long: `Normalize free-text publication dates into day ranges.

Examples:
  litrec date "2019 Mar-Apr" "Summer 2007" 1998
  litrec date --human "12 March 2021"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDate,
}

func runDate(cmd *cobra.Command, args []string) error {
	results := normalizeDates(args)

	failed := 0
	if humanOutput {
		for _, r := range results {
			if r.Error != "" {
				outputHuman("%-30s  error: %s\n", r.Input, r.Error)
				failed++
				continue
			}
			outputHuman("%-30s  %s .. %s\n", r.Input, r.Start, r.End)
		}
	} else {
		for _, r := range results {
			if r.Error != "" {
				failed++
			}
		}
		outputJSON(results)
	}
	if failed > 0 {
		os.Exit(ExitDataError)
	}
	return nil
}

func normalizeDates(inputs []string) []DateResult {
	results := make([]DateResult, len(inputs))
	for i, text := range inputs {
		results[i].Input = text
		rng, err := pubdate.Normalize(text)
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		results[i].Start = rng.StartString()
		results[i].End = rng.EndString()
	}
	return results
}
