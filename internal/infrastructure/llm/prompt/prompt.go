// Package prompt builds the generation prompts shared by all LLM backends.
package prompt

import (
	"fmt"
	"strings"
)

const contextSeparator = "\n\n---\n\n"

func Answer(question string, contexts []string) string {
	return fmt.Sprintf(`You are a reading assistant. Answer the question using only the context below.

Rules:
- Start with a one-paragraph answer whose first line answers the question directly.
- Then quote the single most relevant line from the context, in quotation marks.
- If the context does not support an answer, say "no clear evidence in the text".
- Answer in the language of the question.

[Question]
%s

[Context]
%s
`, question, strings.Join(contexts, contextSeparator))
}

func SummarizePart(text string) string {
	return fmt.Sprintf(`Summarize the key points of the text below in 3 to 5 bullet sentences.
Write in the language of the text.

%s
`, text)
}

func CombineSummaries(partials []string, sentences int) string {
	var b strings.Builder
	for _, p := range partials {
		b.WriteString("- ")
		b.WriteString(p)
		b.WriteString("\n")
	}
	return fmt.Sprintf(`Merge the partial summaries below into a final summary of %d sentences.

Structure:
- One-line summary
- Plot essentials (numbered)
- Main characters and their relationships
- Theme and mood

Partial summaries:
%s`, sentences, b.String())
}
