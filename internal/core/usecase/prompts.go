package usecase

import (
	"fmt"
	"strings"

	"github.com/okutan/corpusqa/internal/core/domain"
)

func buildExpansionPrompt(query string, max int) string {
	return fmt.Sprintf(`You rewrite search queries for a personal knowledge base.
Produce up to %d paraphrase or synonym variations of the query below.
Keep the language of the original query. Respond with JSON only:
{"variations":[{"text":"...","confidence":0.0}]}

Query: %s`, max, query)
}

func buildIntentPrompt(query string) string {
	return fmt.Sprintf(`Classify the intent of this question about a personal document corpus.
Allowed intents: direct, follow_up, comparative, synthesis, exploratory.
Respond with JSON only: {"intent":"..."}

Question: %s`, query)
}

func buildWorkPrompt(question string, contexts []domain.Content, guidance string) string {
	var b strings.Builder
	b.WriteString("You answer questions using ONLY the numbered passages below.\n")
	b.WriteString("Cite passages as [1], [2] and so on. If the passages do not contain the answer, say so.\n")
	b.WriteString("Also estimate your confidence in the answer on a 0-10 scale.\n")
	b.WriteString(`Respond with JSON only: {"answer":"...","confidence":0.0}` + "\n\n")

	for i, c := range contexts {
		title := c.Title
		if title == "" {
			title = c.ID
		}
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, title, c.Text)
	}

	if guidance != "" {
		fmt.Fprintf(&b, "A reviewer asked for this revision of your previous draft: %s\n\n", guidance)
	}

	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}

func buildJudgePrompt(question string, contexts []domain.Content, draft string) string {
	var b strings.Builder
	b.WriteString("You are an independent evaluator. Score the draft answer against the passages.\n")
	b.WriteString("Each dimension is a value in [0,1]: groundedness, relevance, completeness, coherence, citation_accuracy.\n")
	b.WriteString("Decide: accept (good enough to return), revise (fixable, give a reason), reject (unanswerable or misleading, give a reason).\n")
	b.WriteString(`Respond with JSON only: {"decision":"accept","scores":{"groundedness":0.0,"relevance":0.0,"completeness":0.0,"coherence":0.0,"citation_accuracy":0.0},"reason":""}` + "\n\n")

	for i, c := range contexts {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, c.Text)
	}

	fmt.Fprintf(&b, "Question: %s\n\nDraft answer:\n%s", question, draft)
	return b.String()
}
