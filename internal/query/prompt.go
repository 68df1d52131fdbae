package query

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/fyrsmithlabs/coderag/internal/vectorstore"
)

const answerTemplate = `<instructions>
You answer questions about the source code of these repositories: {{.repositories}}.
Use only the excerpts in the context section. Each excerpt starts with the repository and path it came from.
If the excerpts do not contain the answer, say that you do not know.
Mention the file paths you relied on.
</instructions>

<context>
{{.context}}
</context>

<question>
{{.question}}
</question>

<answer>
`

var promptTemplate = prompts.NewPromptTemplate(answerTemplate, []string{"repositories", "context", "question"})

func buildPrompt(repositories []string, context, question string) (string, error) {
	p, err := promptTemplate.Format(map[string]any{
		"repositories": strings.Join(repositories, ", "),
		"context":      context,
		"question":     question,
	})
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return p, nil
}

// buildContext renders results in the given order as
// "<repo>/<path>\n\n<content>\n---" blocks separated by a blank line.
func buildContext(results []vectorstore.SearchResult) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		repo, _ := r.Payload["repo"].(string)
		path, _ := r.Payload["path"].(string)
		content, _ := r.Payload["content"].(string)
		blocks = append(blocks, repo+"/"+path+"\n\n"+content+"\n---")
	}
	return strings.Join(blocks, "\n\n")
}

// extractAnswer trims the model output and drops answer tags the model may
// echo.
func extractAnswer(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "<answer>")
	if i := strings.Index(text, "</answer>"); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}
