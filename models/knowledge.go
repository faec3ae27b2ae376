package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// KnowledgeSource discriminates knowledge items
type KnowledgeSource string

const (
	SourceStatute KnowledgeSource = "statute"
	SourceRuling  KnowledgeSource = "ruling"
)

// IdentityKey is the natural identity of a knowledge item.
// Statutes are keyed by (publisher, year, pos), rulings by judgment id.
type IdentityKey string

// StatuteKey builds the identity key of a statute
func StatuteKey(publisher string, year, pos int) IdentityKey {
	return IdentityKey(fmt.Sprintf("statute:%s/%d/%d", publisher, year, pos))
}

// RulingKey builds the identity key of a court ruling
func RulingKey(judgmentID string) IdentityKey {
	return IdentityKey("ruling:" + judgmentID)
}

// KnowledgeItem is one approved statute or ruling in a conversation's topic knowledge.
// Statute fields are set when Source is SourceStatute, ruling fields when SourceRuling.
type KnowledgeItem struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	Source         KnowledgeSource `json:"source"`
	Title          string          `json:"title"`
	Content        string          `json:"content"`

	Publisher     string   `json:"publisher,omitempty"`
	Year          int      `json:"year,omitempty"`
	Pos           int      `json:"pos,omitempty"`
	CitedArticles []string `json:"cited_articles,omitempty"`

	JudgmentID string `json:"judgment_id,omitempty"`
	CaseNumber string `json:"case_number,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Key returns the identity key of the item
func (k KnowledgeItem) Key() IdentityKey {
	if k.Source == SourceRuling {
		return RulingKey(k.JudgmentID)
	}
	return StatuteKey(k.Publisher, k.Year, k.Pos)
}

// ProposalStatus tracks a knowledge proposal through user confirmation
type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "pending"
	ProposalConfirmed ProposalStatus = "confirmed"
	ProposalConsumed  ProposalStatus = "consumed"
)

// KnowledgeProposal is an item surfaced to the user that is not yet trusted.
// Its token must be confirmed by the user before the item can enter topic knowledge.
type KnowledgeProposal struct {
	Token          string          `json:"token"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	Source         KnowledgeSource `json:"source"`
	IdentityKey    IdentityKey     `json:"identity_key"`
	Title          string          `json:"title"`
	Status         ProposalStatus  `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	ConfirmedAt    *time.Time      `json:"confirmed_at,omitempty"`
}

// CachedDocument is a fetched statute or ruling text in the global cache
type CachedDocument struct {
	Key       IdentityKey     `json:"key"`
	Source    KnowledgeSource `json:"source"`
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	FetchedAt time.Time       `json:"fetched_at"`
}
