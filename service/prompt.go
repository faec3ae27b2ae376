package service

import (
	"fmt"
	"strings"

	"lexcounsel-backend/legalapi"
	"lexcounsel-backend/models"
)

// Timeline block markers
const (
	TimelineStartMarker = "[TIMELINE_START]"
	TimelineEndMarker   = "[TIMELINE_END]"
)

// knowledgeItemLimit caps each topic knowledge item in the system instruction
const knowledgeItemLimit = 6000

var timelineContract = `TIMELINE
When your answer establishes or changes dated facts of the matter (events, deadlines, procedural status),
append exactly one block at the very end of the answer:
` + TimelineStartMarker + `
[{"date": "YYYY-MM-DD or free text", "title": "short title", "description": "one sentence", "type": "fact|deadline|status"}]
` + TimelineEndMarker + `
The block must contain a JSON array only. Omit the block when there is nothing new to record.`

var approvalPolicyWithToken = `NEW KNOWLEDGE
Statutes and rulings you find with tools are NOT part of the topic knowledge until the user approves them.
To suggest one, call propose_topic_knowledge and tell the user what you propose and why.
Only after the user has confirmed the proposal may you call add_statute_to_topic_knowledge or
add_ruling_to_topic_knowledge, passing the confirmationToken returned by propose_topic_knowledge.
If an add call returns pending_confirmation, ask the user to confirm and do not retry.`

var approvalPolicyInstructionOnly = `NEW KNOWLEDGE
Statutes and rulings you find with tools are NOT part of the topic knowledge until the user approves them.
Ask the user before calling add_statute_to_topic_knowledge or add_ruling_to_topic_knowledge,
and call them only after an explicit yes.`

// buildSystemInstruction assembles the system instruction in priority order:
// persona, existing topic knowledge, confirmed proposals, then the fixed output contracts
func buildSystemInstruction(persona string, knowledge []models.KnowledgeItem, confirmed []models.KnowledgeProposal, confirmationRequired bool) string {
	var b strings.Builder
	b.WriteString(persona)

	if len(knowledge) > 0 {
		b.WriteString("\n\nEXISTING KNOWLEDGE\n")
		b.WriteString("The items below are already approved for this topic. Treat them as known and do not ask the user about them again.\n")
		for i, item := range knowledge {
			fmt.Fprintf(&b, "\n[%d] %s\n", i+1, describeKnowledgeItem(item))
			content, truncated := legalapi.Truncate(item.Content, knowledgeItemLimit)
			b.WriteString(content)
			if truncated {
				b.WriteString("\n(truncated)")
			}
			b.WriteString("\n")
		}
	}

	if confirmationRequired && len(confirmed) > 0 {
		b.WriteString("\n\nCONFIRMED BY THE USER\n")
		b.WriteString("The user approved these proposals. Add each one now with the matching add tool and its confirmationToken.\n")
		for _, p := range confirmed {
			fmt.Fprintf(&b, "- %s: %s confirmationToken=%s\n", describeProposal(p), p.Title, p.Token)
		}
	}

	b.WriteString("\n\n")
	if confirmationRequired {
		b.WriteString(approvalPolicyWithToken)
	} else {
		b.WriteString(approvalPolicyInstructionOnly)
	}
	b.WriteString("\n\n")
	b.WriteString(timelineContract)
	return b.String()
}

func describeKnowledgeItem(item models.KnowledgeItem) string {
	if item.Source == models.SourceRuling {
		return fmt.Sprintf("Ruling %s (judgment %s): %s", item.CaseNumber, item.JudgmentID, item.Title)
	}
	desc := fmt.Sprintf("Statute %s %d poz. %d: %s", item.Publisher, item.Year, item.Pos, item.Title)
	if len(item.CitedArticles) > 0 {
		desc += " [cited: " + strings.Join(item.CitedArticles, ", ") + "]"
	}
	return desc
}

// describeProposal names the add tool and arguments for a confirmed proposal
func describeProposal(p models.KnowledgeProposal) string {
	key := string(p.IdentityKey)
	if id, ok := strings.CutPrefix(key, "ruling:"); ok {
		return fmt.Sprintf("add_ruling_to_topic_knowledge judgmentId=%s", id)
	}
	ref, _ := strings.CutPrefix(key, "statute:")
	parts := strings.Split(ref, "/")
	if len(parts) != 3 {
		return key
	}
	return fmt.Sprintf("add_statute_to_topic_knowledge publisher=%s year=%s pos=%s", parts[0], parts[1], parts[2])
}
