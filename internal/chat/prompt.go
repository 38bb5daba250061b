package chat

import (
	"fmt"
	"strings"
)

// SystemPrompt is the fixed assistant persona.
const SystemPrompt = `You are a financial expert assistant. Answer the user's question politely and formally.
Let the output be well-structured in paragraphs and bullet points.
Answer only finance-related questions.`

type Turn struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

func (t Turn) String() string {
	return fmt.Sprintf("User: %s\nAssistant: %s", t.Query, t.Response)
}

// FormatHistory serializes turns oldest first, one "User/Assistant" pair
// per entry, joined with newlines.
func FormatHistory(turns []Turn) string {
	parts := make([]string, len(turns))
	for i, t := range turns {
		parts[i] = t.String()
	}
	return strings.Join(parts, "\n")
}

// BuildPrompt returns the user message sent alongside SystemPrompt.
func BuildPrompt(history []Turn, context, question string) string {
	return fmt.Sprintf(`Chat History:
%s

Context:
%s

Question:
%s`, FormatHistory(history), context, question)
}
