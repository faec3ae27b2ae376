package legalapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const rulingSearchLimit = 5

// Court types understood by the ruling repository
var courtTypes = map[string]bool{
	"COMMON":                  true,
	"SUPREME":                 true,
	"ADMINISTRATIVE":          true,
	"CONSTITUTIONAL_TRIBUNAL": true,
	"NATIONAL_APPEAL_CHAMBER": true,
}

// RulingCandidate is one court ruling search hit
type RulingCandidate struct {
	ID         string `json:"id"`
	CaseNumber string `json:"case_number"`
	Date       string `json:"date"`
	CourtType  string `json:"court_type"`
	Summary    string `json:"summary"`
	RawText    string `json:"raw_text,omitempty"`
}

// RulingClient talks to the SAOS court judgments API
type RulingClient struct {
	baseClient
	summaryLimit int
}

// NewRulingClient creates a ruling client with the given request timeout
func NewRulingClient(baseURL string, timeout time.Duration) *RulingClient {
	return &RulingClient{
		baseClient:   newBaseClient(strings.TrimRight(baseURL, "/"), timeout),
		summaryLimit: 600,
	}
}

type saosJudgment struct {
	ID         int64  `json:"id"`
	CourtType  string `json:"courtType"`
	CourtCases []struct {
		CaseNumber string `json:"caseNumber"`
	} `json:"courtCases"`
	JudgmentDate string `json:"judgmentDate"`
	TextContent  string `json:"textContent"`
}

func (j saosJudgment) caseNumber() string {
	numbers := make([]string, 0, len(j.CourtCases))
	for _, cc := range j.CourtCases {
		numbers = append(numbers, cc.CaseNumber)
	}
	return strings.Join(numbers, ", ")
}

// NormalizeCourtType upper-cases a court type and checks it is known.
// An empty court type is valid and means any court.
func NormalizeCourtType(courtType string) (string, error) {
	ct := strings.ToUpper(strings.TrimSpace(courtType))
	if ct == "" || courtTypes[ct] {
		return ct, nil
	}
	return "", fmt.Errorf("%w: unknown court type %q", ErrInvalidArgument, courtType)
}

// Search returns the top matching rulings, newest first
func (c *RulingClient) Search(ctx context.Context, query, courtType string) ([]RulingCandidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidArgument)
	}
	ct, err := NormalizeCourtType(courtType)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("all", query)
	params.Set("pageSize", strconv.Itoa(rulingSearchLimit))
	params.Set("pageNumber", "0")
	params.Set("sortingField", "JUDGMENT_DATE")
	params.Set("sortingDirection", "DESC")
	if ct != "" {
		params.Set("courtType", ct)
	}

	var resp struct {
		Items []saosJudgment `json:"items"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/search/judgments?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("ruling search failed: %w", err)
	}

	candidates := make([]RulingCandidate, 0, len(resp.Items))
	for _, item := range resp.Items {
		text := HTMLToText([]byte(item.TextContent), "")
		summary, _ := Truncate(text, c.summaryLimit)
		candidates = append(candidates, RulingCandidate{
			ID:         strconv.FormatInt(item.ID, 10),
			CaseNumber: item.caseNumber(),
			Date:       item.JudgmentDate,
			CourtType:  item.CourtType,
			Summary:    summary,
		})
		if len(candidates) == rulingSearchLimit {
			break
		}
	}
	return candidates, nil
}

// FetchText returns the plain text of a ruling
func (c *RulingClient) FetchText(ctx context.Context, judgmentID string) (string, error) {
	if _, err := strconv.ParseInt(judgmentID, 10, 64); err != nil {
		return "", fmt.Errorf("%w: judgment id must be numeric", ErrInvalidArgument)
	}

	var resp struct {
		Data saosJudgment `json:"data"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/judgments/"+judgmentID, &resp); err != nil {
		return "", fmt.Errorf("ruling fetch failed: %w", err)
	}

	text := HTMLToText([]byte(resp.Data.TextContent), "")
	if text == "" {
		return "", ErrNotFound
	}
	return text, nil
}
