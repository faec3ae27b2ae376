package service

import (
	"strings"

	"lexcounsel-backend/llm"
	"lexcounsel-backend/models"
)

// placeholderUserText opens a history that would otherwise start with the model
const placeholderUserText = "(conversation continued)"

// NormalizeHistory makes a history safe to send to the model: it starts with
// a user message and roles strictly alternate. A leading model message gets a
// placeholder user message in front of it. Adjacent messages with the same
// role are merged, text joined with a blank line, so no content is dropped.
func NormalizeHistory(messages []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages)+1)

	for _, msg := range messages {
		if len(msg.Parts) == 0 {
			continue
		}
		if len(out) == 0 && msg.Role != models.RoleUser {
			out = append(out, llm.Message{
				Role:  models.RoleUser,
				Parts: []llm.Part{llm.TextPart(placeholderUserText)},
			})
		}

		last := len(out) - 1
		if last >= 0 && out[last].Role == msg.Role {
			out[last].Parts = mergeParts(out[last].Parts, msg.Parts)
			continue
		}

		parts := make([]llm.Part, len(msg.Parts))
		copy(parts, msg.Parts)
		out = append(out, llm.Message{Role: msg.Role, Parts: parts})
	}

	return out
}

// mergeParts appends next to prev. When both boundaries are text they are
// joined into a single text part.
func mergeParts(prev, next []llm.Part) []llm.Part {
	merged := append([]llm.Part{}, prev...)
	for i, p := range next {
		last := len(merged) - 1
		if i == 0 && isText(p) && last >= 0 && isText(merged[last]) {
			merged[last].Text = strings.TrimRight(merged[last].Text, "\n") + "\n\n" + p.Text
			continue
		}
		merged = append(merged, p)
	}
	return merged
}

func isText(p llm.Part) bool {
	return p.Blob == nil && p.ToolCall == nil && p.ToolResult == nil
}

// turnsToMessages converts stored turns into model messages
func turnsToMessages(turns []models.ConversationTurn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		msgs = append(msgs, llm.Message{Role: t.Role, Parts: []llm.Part{llm.TextPart(t.Content)}})
	}
	return msgs
}
