package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(historyCmd)
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <curie>",
	Short: "Find the active reference for a curie",
	Long: `Find the active reference for a reference curie or external identifier.

Reference curies are followed through merge redirects. Anything else is
looked up as an identifier held by a reference, e.g. PMID:12345.

Examples:
  litrec resolve AGR:AGR-Reference-0000000002
  litrec resolve PMID:12345`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	log := mustNewLogger(cfg)
	defer log.Sync()
	db := mustOpenDatabase(cfg)
	defer db.Close()

	res, err := newMergeOperator(db, log).Resolve(context.Background(), args[0])
	exitOnError(err, "resolving "+args[0])

	if humanOutput {
		ref := res.Reference
		outputHuman("%s\n", ref.Curie)
		if res.Via != "" {
			outputHuman("  via identifier %s\n", res.Via)
		}
		if len(res.Chain) > 1 {
			outputHuman("  redirects: %s\n", strings.Join(res.Chain, " -> "))
		}
		if ref.Biblio.Title != "" {
			outputHuman("  %s\n", ref.Biblio.Title)
		}
		for _, x := range ref.CrossReferences {
			if !x.Obsolete {
				outputHuman("  %s\n", x.Curie())
			}
		}
		return nil
	}
	return outputJSON(res)
}

var historyCmd = &cobra.Command{
	Use:   "history <curie>",
	Short: "Show the change history of a reference",
	Long: `Show every recorded change of a reference, including the changes made
to records that were later merged into it, oldest first.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	log := mustNewLogger(cfg)
	defer log.Sync()
	db := mustOpenDatabase(cfg)
	defer db.Close()

	versions, err := newMergeOperator(db, log).History(context.Background(), args[0])
	exitOnError(err, "loading history of "+args[0])

	if humanOutput {
		for _, v := range versions {
			outputHuman("%s  %-8s %-22s ref=%d row=%d  by %s\n",
				v.RecordedAt, v.Action, v.Table, v.ReferenceID, v.RowID, v.Actor)
		}
		return nil
	}
	return outputJSON(versions)
}
