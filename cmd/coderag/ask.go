package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/coderag/internal/query"
)

var (
	askShowContext bool
	askJSON        bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question from the index",
	Long: `Answer a question using the chunks most similar to it in the index.
Run "coderag index" first.

Examples:
  coderag ask "How are API keys validated?"

  # Show the context handed to the model
  coderag ask --context "Where is the retry policy configured?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askShowContext, "context", false, "print the retrieved context")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the answer as JSON")
}

// errAnswerFailed is returned after the user-facing message has been printed.
var errAnswerFailed = errors.New("question not answered")

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	engine, err := a.newEngine()
	if err != nil {
		return err
	}

	ans, err := engine.Answer(ctx, strings.Join(args, " "))
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), query.UserMessage(err))
		return errAnswerFailed
	}

	if askJSON {
		if !askShowContext {
			ans.Context = ""
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(ans)
	}
	printAnswer(cmd.OutOrStdout(), ans, askShowContext)
	return nil
}

func printAnswer(w io.Writer, ans *query.Answer, withContext bool) {
	if withContext {
		fmt.Fprintf(w, "Context:\n%s\n\n", ans.Context)
	}
	fmt.Fprintln(w, ans.Answer)
	if len(ans.Sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for _, s := range ans.Sources {
		fmt.Fprintf(w, "  %s/%s (score %.3f)\n", s.Repo, s.Path, s.Score)
	}
}
