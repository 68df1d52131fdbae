// Coderag answers questions about a set of code repositories.
//
// It clones or updates the configured repositories, indexes their source and
// documentation into a vector store, and answers questions by retrieving the
// most similar chunks and handing them to a language model.
//
// Usage:
//
//	# Rebuild the index from config.yaml
//	coderag index --config config.yaml
//
//	# Ask a single question
//	coderag ask --config config.yaml "Where is the retry policy configured?"
//
//	# Serve the HTTP API
//	coderag serve --config config.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath  string
	envFilePath string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "coderag",
	Short: "Answer questions about code repositories",
	Long: `coderag indexes a configured set of git repositories into a vector store
and answers natural-language questions about them with retrieval-augmented
generation.

Configuration is read from a YAML file, an optional dotenv file, and
CODERAG_* environment variables, in increasing order of precedence.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFilePath, "env-file", ".env", "dotenv file applied above the config file")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "coderag by Fyrsmith Labs\n")
		fmt.Fprintf(out, "Version:    %s\n", version)
		fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
		fmt.Fprintf(out, "Build Date: %s\n", buildDate)
	},
}
