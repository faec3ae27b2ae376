package service

import (
	"context"
	"encoding/json"
	"log"
	"slices"
	"strings"
	"time"

	"lexcounsel-backend/metrics"
	"lexcounsel-backend/models"

	"github.com/google/uuid"
)

// TimelineExtraction is the result of splitting an answer
type TimelineExtraction struct {
	Text        string
	Events      []models.TimelineEvent
	ParseFailed bool
}

// TimelineExtractor pulls the timeline block out of a final answer
type TimelineExtractor struct {
	store   TimelineStore
	metrics *metrics.Metrics
	logger  *log.Logger
	now     func() time.Time
}

// TimelineExtractorOption is a functional option for TimelineExtractor
type TimelineExtractorOption func(*TimelineExtractor)

// TimelineWithStore sets the timeline store
func TimelineWithStore(store TimelineStore) TimelineExtractorOption {
	return func(e *TimelineExtractor) {
		e.store = store
	}
}

// TimelineWithMetrics sets the metrics recorder
func TimelineWithMetrics(m *metrics.Metrics) TimelineExtractorOption {
	return func(e *TimelineExtractor) {
		e.metrics = m
	}
}

// TimelineWithLogger sets the logger
func TimelineWithLogger(l *log.Logger) TimelineExtractorOption {
	return func(e *TimelineExtractor) {
		e.logger = l
	}
}

// NewTimelineExtractor creates a timeline extractor
func NewTimelineExtractor(opts ...TimelineExtractorOption) *TimelineExtractor {
	e := &TimelineExtractor{
		logger: log.New(log.Writer(), "[timeline] ", log.LstdFlags),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type rawTimelineEvent struct {
	Date        string `json:"date"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// Extract splits raw into display text and events. Each end marker closes the
// nearest open start marker; markers left without a partner are strays. Only
// the first well-formed block is parsed; once one parses every block and stray
// marker is removed from the text. When no block parses the text is returned
// unchanged with no events.
func (e *TimelineExtractor) Extract(conversationID uuid.UUID, raw string) TimelineExtraction {
	blocks, strays := scanTimelineBlocks(raw)
	if len(blocks) == 0 {
		if len(strays) > 0 {
			e.logger.Printf("Warning: unmatched timeline marker in conversation %s", conversationID)
			return TimelineExtraction{Text: raw, ParseFailed: true}
		}
		return TimelineExtraction{Text: raw}
	}

	var parsed []rawTimelineEvent
	found := false
	for i, b := range blocks {
		events, err := parseTimelineBlock(raw[b.bodyStart:b.bodyEnd])
		if err != nil {
			e.logger.Printf("Warning: timeline block %d in conversation %s is malformed: %v", i+1, conversationID, err)
			continue
		}
		if found {
			e.logger.Printf("Warning: ignoring additional timeline block %d in conversation %s", i+1, conversationID)
			continue
		}
		parsed = events
		found = true
	}

	if !found {
		return TimelineExtraction{Text: raw, ParseFailed: true}
	}
	if len(strays) > 0 {
		e.logger.Printf("Warning: dropping %d unmatched timeline markers in conversation %s", len(strays), conversationID)
	}

	now := e.now()
	events := make([]models.TimelineEvent, 0, len(parsed))
	for _, ev := range parsed {
		events = append(events, models.TimelineEvent{
			ID:             uuid.New(),
			ConversationID: conversationID,
			Date:           strings.TrimSpace(ev.Date),
			Title:          strings.TrimSpace(ev.Title),
			Description:    strings.TrimSpace(ev.Description),
			Type:           eventType(ev.Type),
			CreatedAt:      now,
		})
	}

	text := removeSpans(raw, append(blocks, strays...))
	return TimelineExtraction{Text: strings.TrimSpace(text), Events: events}
}

// ExtractAndStore extracts the timeline and persists the events. A storage
// failure is logged and the events are dropped; the answer text is kept.
func (e *TimelineExtractor) ExtractAndStore(ctx context.Context, conversationID uuid.UUID, raw string) TimelineExtraction {
	result := e.Extract(conversationID, raw)

	if len(result.Events) > 0 && e.store != nil {
		if err := e.store.InsertBatch(ctx, result.Events); err != nil {
			e.logger.Printf("Warning: failed to store %d timeline events for conversation %s: %v", len(result.Events), conversationID, err)
			result.Events = nil
		}
	}

	e.metrics.RecordTimeline(len(result.Events), result.ParseFailed)
	return result
}

// timelineSpan is a byte range of raw. For a block, body is the text between
// the markers; for a stray marker the body is empty.
type timelineSpan struct {
	start, end         int
	bodyStart, bodyEnd int
}

func scanTimelineBlocks(raw string) (blocks, strays []timelineSpan) {
	open := -1
	for i := 0; i < len(raw); {
		j := strings.IndexByte(raw[i:], '[')
		if j < 0 {
			break
		}
		i += j
		switch {
		case strings.HasPrefix(raw[i:], TimelineStartMarker):
			if open >= 0 {
				strays = append(strays, timelineSpan{start: open, end: open + len(TimelineStartMarker)})
			}
			open = i
			i += len(TimelineStartMarker)
		case strings.HasPrefix(raw[i:], TimelineEndMarker):
			end := i + len(TimelineEndMarker)
			if open < 0 {
				strays = append(strays, timelineSpan{start: i, end: end})
			} else {
				blocks = append(blocks, timelineSpan{
					start: open, end: end,
					bodyStart: open + len(TimelineStartMarker), bodyEnd: i,
				})
				open = -1
			}
			i = end
		default:
			i++
		}
	}
	if open >= 0 {
		strays = append(strays, timelineSpan{start: open, end: open + len(TimelineStartMarker)})
	}
	return blocks, strays
}

// removeSpans cuts non-overlapping spans out of raw
func removeSpans(raw string, spans []timelineSpan) string {
	slices.SortFunc(spans, func(a, b timelineSpan) int { return a.start - b.start })
	var b strings.Builder
	b.Grow(len(raw))
	last := 0
	for _, sp := range spans {
		b.WriteString(raw[last:sp.start])
		last = sp.end
	}
	b.WriteString(raw[last:])
	return b.String()
}

func parseTimelineBlock(body string) ([]rawTimelineEvent, error) {
	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "```") {
		if nl := strings.Index(body, "\n"); nl >= 0 {
			body = body[nl+1:]
		} else {
			body = strings.TrimPrefix(body, "```")
		}
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}

	var events []rawTimelineEvent
	if err := json.Unmarshal([]byte(body), &events); err != nil {
		return nil, err
	}
	return events, nil
}

func eventType(s string) models.TimelineEventType {
	switch t := models.TimelineEventType(strings.ToLower(strings.TrimSpace(s))); t {
	case models.EventFact, models.EventDeadline, models.EventStatus:
		return t
	}
	return models.EventFact
}
