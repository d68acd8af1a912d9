package chat

import (
	"fmt"
	"strings"

	"github.com/pdfchat/backend/internal/vector/milvus"
)

const answerTemplate = `You are a helpful AI assistant for answering questions about the content of a PDF document. Use the following context to provide a detailed and accurate answer.
If the context does not contain the answer, politely respond that you don't know.
The answer should be neither too short nor too long, keep it balanced.
Make sure to use all the relevant information from the context to provide a comprehensive answer.
At the end of your answer, list the page numbers you used.
Answer the question based only on the following context:

Context:
%s

Question: %s
Answer (with page citations):`

// buildContext joins retrieved chunk texts in index order with a blank-line
// separator. No deduplication, no re-ranking, no truncation: if the result
// exceeds the model's input limit the generation call reports it.
func buildContext(results []milvus.SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(fmt.Sprintf("[page %d] %s", r.Page, r.Text))
	}
	return b.String()
}

func renderPrompt(context, question string) string {
	return fmt.Sprintf(answerTemplate, context, question)
}
