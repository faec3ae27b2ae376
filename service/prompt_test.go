package service

import (
	"strings"
	"testing"

	"lexcounsel-backend/models"
)

func TestSystemInstructionListsConfirmedProposals(t *testing.T) {
	confirmed := []models.KnowledgeProposal{
		{Token: "tok-statute", IdentityKey: models.StatuteKey("DU", 1964, 16), Title: "Kodeks cywilny", Status: models.ProposalConfirmed},
		{Token: "tok-ruling", IdentityKey: models.RulingKey("12345"), Title: "I C 12/21", Status: models.ProposalConfirmed},
	}
	knowledge := []models.KnowledgeItem{{Source: models.SourceStatute, Publisher: "DU", Year: 2023, Pos: 2809, Title: "Example Act"}}

	sys := buildSystemInstruction("persona", knowledge, confirmed, true)
	for _, want := range []string{
		"add_statute_to_topic_knowledge publisher=DU year=1964 pos=16: Kodeks cywilny confirmationToken=tok-statute",
		"add_ruling_to_topic_knowledge judgmentId=12345: I C 12/21 confirmationToken=tok-ruling",
	} {
		if !strings.Contains(sys, want) {
			t.Errorf("missing %q in:\n%s", want, sys)
		}
	}
	knowledgeAt := strings.Index(sys, "EXISTING KNOWLEDGE")
	confirmedAt := strings.Index(sys, "CONFIRMED BY THE USER")
	policyAt := strings.Index(sys, "NEW KNOWLEDGE")
	if knowledgeAt < 0 || confirmedAt <= knowledgeAt || policyAt <= confirmedAt {
		t.Errorf("blocks out of order: knowledge %d, confirmed %d, policy %d", knowledgeAt, confirmedAt, policyAt)
	}

	if sys := buildSystemInstruction("persona", nil, confirmed, false); strings.Contains(sys, "confirmationToken=") {
		t.Errorf("tokens listed without confirmation policy")
	}
	if sys := buildSystemInstruction("persona", nil, nil, true); strings.Contains(sys, "CONFIRMED BY THE USER") {
		t.Errorf("empty confirmed block rendered")
	}
}
