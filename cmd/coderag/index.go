package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/coderag/internal/config"
	"github.com/fyrsmithlabs/coderag/internal/indexer"
)

var (
	indexOnly           []string
	indexPartialRebuild bool
)

var errPartialRebuild = errors.New("--only resets the whole collection and drops every other repository; pass --partial-rebuild to confirm")

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Fetch the configured repositories and rebuild the index",
	Long: `Clone or update every configured repository, then rebuild the vector
collection from scratch. The collection is deleted and recreated on every run,
so it only ever reflects the latest run.

A repository that cannot be fetched or read is skipped; the others are still
indexed. The command fails only when the run cannot start or is interrupted.

--only still resets the whole collection, so points from every repository
not named are deleted. It therefore requires --partial-rebuild.

Examples:
  # Rebuild everything
  coderag index --config config.yaml

  # Rebuild from two repositories only, dropping all others
  coderag index --config config.yaml --only api --only web --partial-rebuild`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringSliceVar(&indexOnly, "only", nil, "index only the named repositories")
	indexCmd.Flags().BoolVar(&indexPartialRebuild, "partial-rebuild", false, "confirm that --only drops points of unnamed repositories")
}

func runIndex(cmd *cobra.Command, _ []string) error {
	if len(indexOnly) > 0 && !indexPartialRebuild {
		return errPartialRebuild
	}
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	ix, err := a.newIndexer()
	if err != nil {
		return err
	}

	summary, err := ix.Run(ctx, selectRepositories(a.cfg.Repositories, indexOnly))
	if summary != nil {
		printSummary(cmd.OutOrStdout(), summary)
	}
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	return nil
}

// selectRepositories keeps the entries named in only, or all of them when
// only is empty.
func selectRepositories(repos []config.RepositoryDescriptor, only []string) []config.RepositoryDescriptor {
	if len(only) == 0 {
		return repos
	}
	out := make([]config.RepositoryDescriptor, 0, len(only))
	for _, r := range repos {
		if slices.Contains(only, r.Name) {
			out = append(out, r)
		}
	}
	return out
}

func printSummary(w io.Writer, s *indexer.RunSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REPOSITORY\tSTATUS\tDOCUMENTS\tCHUNKS\tSKIPPED\tREDACTED")
	for _, r := range s.Repositories {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n",
			r.Name, r.Status, r.Documents, r.Chunks, r.FailedDocuments+r.FailedChunks, r.Redactions)
	}
	_ = tw.Flush()

	for _, err := range s.Rejected {
		fmt.Fprintf(w, "skipped entry: %v\n", err)
	}
	for _, r := range s.Failed() {
		fmt.Fprintf(w, "failed %s: %v\n", r.Name, r.Err)
	}
	fmt.Fprintf(w, "\nrun %s stored %d points in %q in %s\n",
		s.RunID, s.Points, s.Collection, s.Duration.Round(time.Millisecond))
}
