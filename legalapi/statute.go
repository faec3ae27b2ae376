package legalapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const statuteSearchLimit = 5

// StatuteQuery describes a statute search
type StatuteQuery struct {
	Keyword   string
	Year      int
	Publisher string
	InForce   *bool
}

// StatuteCandidate is one statute search hit
type StatuteCandidate struct {
	Publisher string `json:"publisher"`
	Year      int    `json:"year"`
	Pos       int    `json:"pos"`
	Title     string `json:"title"`
	Date      string `json:"date"`
	ELI       string `json:"eli"`
	Status    string `json:"status,omitempty"`
}

// StatuteClient talks to the ELI API of the Polish legal acts repository (ISAP)
type StatuteClient struct {
	baseClient
}

// NewStatuteClient creates a statute client with the given request timeout
func NewStatuteClient(baseURL string, timeout time.Duration) *StatuteClient {
	return &StatuteClient{baseClient: newBaseClient(strings.TrimRight(baseURL, "/"), timeout)}
}

type eliSearchResponse struct {
	Count int `json:"count"`
	Items []struct {
		ELI          string `json:"ELI"`
		Publisher    string `json:"publisher"`
		Year         int    `json:"year"`
		Pos          int    `json:"pos"`
		Title        string `json:"title"`
		Promulgation string `json:"promulgation"`
		Status       string `json:"status"`
	} `json:"items"`
}

// Search returns the top candidate statutes for a query
func (c *StatuteClient) Search(ctx context.Context, q StatuteQuery) ([]StatuteCandidate, error) {
	keyword := strings.TrimSpace(q.Keyword)
	if keyword == "" {
		return nil, fmt.Errorf("%w: keyword is required", ErrInvalidArgument)
	}

	params := url.Values{}
	params.Set("title", keyword)
	params.Set("limit", strconv.Itoa(statuteSearchLimit))
	if q.Year > 0 {
		params.Set("year", strconv.Itoa(q.Year))
	}
	if q.Publisher != "" {
		params.Set("publisher", q.Publisher)
	}
	if q.InForce != nil {
		if *q.InForce {
			params.Set("inForce", "1")
		} else {
			params.Set("inForce", "0")
		}
	}

	var resp eliSearchResponse
	if err := c.getJSON(ctx, c.baseURL+"/acts/search?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("statute search failed: %w", err)
	}

	candidates := make([]StatuteCandidate, 0, len(resp.Items))
	for _, item := range resp.Items {
		candidates = append(candidates, StatuteCandidate{
			Publisher: item.Publisher,
			Year:      item.Year,
			Pos:       item.Pos,
			Title:     item.Title,
			Date:      item.Promulgation,
			ELI:       item.ELI,
			Status:    item.Status,
		})
		if len(candidates) == statuteSearchLimit {
			break
		}
	}
	return candidates, nil
}

// FetchText returns the plain text of a statute, capped at limit runes.
// A limit of zero returns the full text (used for ingestion).
func (c *StatuteClient) FetchText(ctx context.Context, publisher string, year, pos, limit int) (string, error) {
	if publisher == "" || year <= 0 || pos <= 0 {
		return "", fmt.Errorf("%w: publisher, year and pos are required", ErrInvalidArgument)
	}

	textURL := fmt.Sprintf("%s/acts/%s/%d/%d/text.html", c.baseURL, url.PathEscape(publisher), year, pos)
	body, err := c.get(ctx, textURL, "text/html")
	if err != nil {
		return "", fmt.Errorf("statute fetch failed: %w", err)
	}

	text := HTMLToText(body, textURL)
	if text == "" {
		return "", ErrNotFound
	}
	text, _ = Truncate(text, limit)
	return text, nil
}
