package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fabfab/contract-agent/contract"
	"github.com/fabfab/contract-agent/llm"
)

const maxSnippet = 1200

// source is a retrieved passage prepared for the prompt.
type source struct {
	Passage      contract.Passage
	Title        string
	Superseded   bool
	SupersededBy string
	Contested    bool
}

func buildContextPrompt(sources []source) string {
	var sb strings.Builder
	for idx := range sources {
		src := &sources[idx]
		sb.WriteString(fmt.Sprintf("Source %d: %s (%s)\n", idx+1, src.Title, src.Passage.Group.Label()))
		if src.Passage.HasClause() {
			heading := "Clause " + src.Passage.ClauseNumber
			if title := strings.TrimSpace(src.Passage.ClauseTitle); title != "" {
				heading += " - " + title
			}
			sb.WriteString(heading + "\n")
		}
		switch {
		case src.Contested:
			sb.WriteString("Status: CONTESTED (conflicting override records, do not pick a winner)\n")
		case src.Superseded:
			sb.WriteString(fmt.Sprintf("Status: SUPERSEDED by %s (not legally effective)\n", src.SupersededBy))
		}
		snippet := strings.TrimSpace(src.Passage.Text)
		snippet = truncate(snippet, maxSnippet)
		sb.WriteString(snippet)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// truncate cuts s to at most limit bytes on a rune boundary.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func formatUserPrompt(question, context string, notes []string) string {
	var sb strings.Builder
	sb.WriteString("Question:\n")
	sb.WriteString(question)
	if strings.TrimSpace(context) != "" {
		sb.WriteString("\nContract passages:\n")
		sb.WriteString(context)
	}
	if len(notes) > 0 {
		sb.WriteString("Precedence notes:\n")
		for _, n := range notes {
			sb.WriteString("- " + n + "\n")
		}
	}
	sb.WriteString("\nAnswer in markdown. Begin with the direct answer and cite Source numbers in brackets (e.g., [Source 1]) for every statement drawn from the passages.")
	return sb.String()
}

func buildMessages(system string, history []llm.Message, user string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	messages = append(messages, history...)
	return append(messages, llm.Message{Role: llm.RoleUser, Content: user})
}

func citations(sources []source) []contract.Citation {
	out := make([]contract.Citation, 0, len(sources))
	for _, src := range sources {
		out = append(out, contract.Citation{
			PassageID:     src.Passage.ID,
			DocumentID:    src.Passage.DocumentID,
			DocumentTitle: src.Title,
			Group:         src.Passage.Group,
			ClauseNumber:  src.Passage.ClauseNumber,
			Superseded:    src.Superseded,
			SupersededBy:  src.SupersededBy,
			Contested:     src.Contested,
		})
	}
	return out
}

func documentsSystemPrompt() string {
	return "You are the contract documents specialist for a construction contract. You know the Agreement, the Letter of Acceptance, Addendums, the Bill of Quantities and the Schedules. Answer only from the supplied contract passages and cite them by Source number. If the passages do not answer the question, say so plainly instead of guessing. Quote amounts, dates and parties exactly as written."
}

func conditionsSystemPrompt() string {
	return "You are the conditions of contract specialist for a construction contract. You know the General and Particular Conditions and the Addendums that amend them. Answer only from the supplied passages and cite clause numbers and Source numbers. Passages marked SUPERSEDED are no longer legally effective: mention them only to explain what changed. Passages marked CONTESTED have conflicting override records: present each version and state that the precedence is unresolved. If the passages do not answer the question, say so plainly."
}
