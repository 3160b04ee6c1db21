package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/litcat/litrec/internal/config"
	"github.com/litcat/litrec/internal/merge"
	"github.com/litcat/litrec/internal/metrics"
	"github.com/litcat/litrec/internal/storage"
)

func init() {
	rootCmd.AddCommand(mergeCmd)
}

var mergeCmd = &cobra.Command{
	Use:   "merge <obsolete-curie> <surviving-curie>",
	Short: "Merge a duplicate reference into the surviving one",
	Long: `Merge a duplicate reference into the surviving one.

Identifiers, authors, MeSH terms, reference types, corpus associations and
relations move to the survivor; the obsolete record is kept as a redirect.
Merging the same pair again is a no-op.

Example:
  litrec merge AGR:AGR-Reference-0000000002 AGR:AGR-Reference-0000000001`,
	Args: cobra.ExactArgs(2),
	RunE: runMerge,
}

func runMerge(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	actor := mustActor(cfg)
	log := mustNewLogger(cfg)
	defer log.Sync()
	db := mustOpenDatabase(cfg)
	defer db.Close()

	res, err := newMergeOperator(db, log).Merge(context.Background(), actor, args[0], args[1])
	exitOnError(err, "merge refused")

	if humanOutput {
		printMergeHuman(res)
		return nil
	}
	return outputJSON(res)
}

func newMergeOperator(db *storage.DB, log *zap.Logger) *merge.Operator {
	return merge.New(db, merge.Options{Logger: log, Metrics: metrics.New(nil)})
}

func printMergeHuman(res *merge.Result) {
	if res.AlreadyMerged {
		outputHuman("%s was already merged into %s\n", res.Obsolete, res.Survivor)
		return
	}
	m := res.Moved
	outputHuman("Merged %s into %s\n", res.Obsolete, res.Survivor)
	outputHuman("  moved: %d identifiers, %d authors, %d MeSH terms, %d reference types, %d corpus associations, %d relations\n",
		m.Identifiers, m.Authors, m.MeshTerms, m.ReferenceTypes, m.Corpus, m.Relations)
	for _, c := range res.Conflicts {
		outputHuman("  %s\n", c.Error())
	}
}

var duplicatesMerge bool

func init() {
	duplicatesCmd.Flags().BoolVar(&duplicatesMerge, "merge", false, "Merge each group into its oldest reference")
	rootCmd.AddCommand(duplicatesCmd)
}

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List references that share an identifier",
	Long: `List groups of active references that hold the same identifier when
case is ignored. These are probable duplicates for curator review.

With --merge every group is merged into its oldest reference.`,
	Args: cobra.NoArgs,
	RunE: runDuplicates,
}

// DuplicatesResult is the response for the duplicates command.
type DuplicatesResult struct {
	Candidates []merge.Candidate `json:"candidates"`
	Merged     []*merge.Result   `json:"merged,omitempty"`
	Errors     []string          `json:"errors,omitempty"`
}

func runDuplicates(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	log := mustNewLogger(cfg)
	defer log.Sync()
	db := mustOpenDatabase(cfg)
	defer db.Close()

	ctx := context.Background()
	op := newMergeOperator(db, log)
	candidates, err := op.FindCandidates(ctx)
	exitOnError(err, "finding duplicates")

	result := DuplicatesResult{Candidates: candidates}
	if duplicatesMerge {
		mergeCandidates(ctx, cfg, op, &result)
	}

	if humanOutput {
		if len(candidates) == 0 {
			outputHuman("No duplicate candidates\n")
		}
		for _, c := range candidates {
			outputHuman("%s: %s\n", c.Identifier, strings.Join(c.Curies, ", "))
		}
		for _, r := range result.Merged {
			printMergeHuman(r)
		}
		for _, e := range result.Errors {
			outputHuman("error: %s\n", e)
		}
	} else {
		outputJSON(result)
	}
	if len(result.Errors) > 0 {
		exitWithError(ExitDataError, "%d duplicate groups could not be merged", len(result.Errors))
	}
	return nil
}

func mergeCandidates(ctx context.Context, cfg *config.Config, op *merge.Operator, result *DuplicatesResult) {
	actor := mustActor(cfg)
	for _, c := range result.Candidates {
		merged, err := op.MergeCandidate(ctx, actor, c)
		result.Merged = append(result.Merged, merged...)
		if err != nil {
			result.Errors = append(result.Errors, c.Identifier+": "+err.Error())
		}
	}
}
