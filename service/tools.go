package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"lexcounsel-backend/legalapi"
	"lexcounsel-backend/llm"
	"lexcounsel-backend/metrics"
	"lexcounsel-backend/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ToolName is the closed set of tools the model may call
type ToolName string

const (
	ToolSearchStatutes        ToolName = "search_statutes"
	ToolGetStatuteContent     ToolName = "get_statute_content"
	ToolAddStatute            ToolName = "add_statute_to_topic_knowledge"
	ToolSearchCaseLaw         ToolName = "search_case_law"
	ToolAddRuling             ToolName = "add_ruling_to_topic_knowledge"
	ToolSearchSemanticLibrary ToolName = "search_semantic_library"
	ToolProposeKnowledge      ToolName = "propose_topic_knowledge"
)

// ToolStatus is the status field of every tool response
type ToolStatus string

const (
	StatusOK                  ToolStatus = "ok"
	StatusAlreadyExists       ToolStatus = "already_exists"
	StatusNotFound            ToolStatus = "not_found"
	StatusError               ToolStatus = "error"
	StatusPendingConfirmation ToolStatus = "pending_confirmation"
)

// ToolScope identifies the conversation and owner a tool call runs for
type ToolScope struct {
	ConversationID uuid.UUID
	OwnerID        uuid.UUID
}

type toolHandler func(ctx context.Context, scope ToolScope, args toolArgs) (map[string]any, error)

// ToolDispatcher executes model tool calls against the adapters and stores
type ToolDispatcher struct {
	knowledge *KnowledgeService
	ingestion *IngestionService
	statutes  StatuteSource
	rulings   RulingSource

	concurrency int
	callTimeout time.Duration

	handlers map[ToolName]toolHandler
	metrics  *metrics.Metrics
	logger   *log.Logger
}

// ToolDispatcherOption is a functional option for ToolDispatcher
type ToolDispatcherOption func(*ToolDispatcher)

// ToolsWithKnowledgeService sets the knowledge service
func ToolsWithKnowledgeService(k *KnowledgeService) ToolDispatcherOption {
	return func(d *ToolDispatcher) {
		d.knowledge = k
	}
}

// ToolsWithIngestionService sets the ingestion service
func ToolsWithIngestionService(i *IngestionService) ToolDispatcherOption {
	return func(d *ToolDispatcher) {
		d.ingestion = i
	}
}

// ToolsWithStatuteSource sets the statute adapter
func ToolsWithStatuteSource(src StatuteSource) ToolDispatcherOption {
	return func(d *ToolDispatcher) {
		d.statutes = src
	}
}

// ToolsWithRulingSource sets the ruling adapter
func ToolsWithRulingSource(src RulingSource) ToolDispatcherOption {
	return func(d *ToolDispatcher) {
		d.rulings = src
	}
}

// ToolsWithConcurrency bounds how many calls of one model turn run at once
func ToolsWithConcurrency(n int) ToolDispatcherOption {
	return func(d *ToolDispatcher) {
		d.concurrency = n
	}
}

// ToolsWithCallTimeout bounds each tool call
func ToolsWithCallTimeout(timeout time.Duration) ToolDispatcherOption {
	return func(d *ToolDispatcher) {
		d.callTimeout = timeout
	}
}

// ToolsWithMetrics sets the metrics recorder
func ToolsWithMetrics(m *metrics.Metrics) ToolDispatcherOption {
	return func(d *ToolDispatcher) {
		d.metrics = m
	}
}

// ToolsWithLogger sets the logger
func ToolsWithLogger(l *log.Logger) ToolDispatcherOption {
	return func(d *ToolDispatcher) {
		d.logger = l
	}
}

// NewToolDispatcher creates a tool dispatcher
func NewToolDispatcher(opts ...ToolDispatcherOption) *ToolDispatcher {
	d := &ToolDispatcher{
		concurrency: 4,
		callTimeout: 60 * time.Second,
		logger:      log.New(log.Writer(), "[tools] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.concurrency < 1 {
		d.concurrency = 1
	}

	d.handlers = map[ToolName]toolHandler{
		ToolSearchStatutes:        d.searchStatutes,
		ToolGetStatuteContent:     d.getStatuteContent,
		ToolAddStatute:            d.addStatute,
		ToolSearchCaseLaw:         d.searchCaseLaw,
		ToolAddRuling:             d.addRuling,
		ToolSearchSemanticLibrary: d.searchSemanticLibrary,
		ToolProposeKnowledge:      d.proposeKnowledge,
	}
	return d
}

// Declarations returns the tool declarations sent to the model
func (d *ToolDispatcher) Declarations() []llm.ToolDeclaration {
	return toolDeclarations(d.confirmationRequired())
}

func (d *ToolDispatcher) confirmationRequired() bool {
	return d.knowledge != nil && d.knowledge.ConfirmationRequired()
}

// DispatchAll runs every call of one model turn and waits for all of them.
// Results are returned in call order, one per call.
func (d *ToolDispatcher) DispatchAll(ctx context.Context, scope ToolScope, calls []models.ToolCall) []models.ToolResult {
	results := make([]models.ToolResult, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = d.Dispatch(gctx, scope, call)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Dispatch runs one call. Failures are reported in the result, never returned.
func (d *ToolDispatcher) Dispatch(ctx context.Context, scope ToolScope, call models.ToolCall) (result models.ToolResult) {
	result = models.ToolResult{CallID: call.ID, Name: call.Name}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Printf("Error: tool %s panicked: %v", call.Name, r)
			result.Response = errorResponse("internal tool failure")
		}
		label := call.Name
		if _, known := d.handlers[ToolName(call.Name)]; !known {
			label = "unknown"
		}
		d.metrics.RecordToolCall(label, result.Status())
		d.logger.Printf("%s -> %s (%s)", call.Name, result.Status(), time.Since(start).Round(time.Millisecond))
	}()

	handler, ok := d.handlers[ToolName(call.Name)]
	if !ok {
		result.Response = errorResponse(fmt.Sprintf("unknown tool %q", call.Name))
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	resp, err := handler(callCtx, scope, toolArgs(call.Arguments))
	if err != nil {
		d.logger.Printf("Warning: tool %s failed: %v", call.Name, err)
		result.Response = d.failureResponse(callCtx, err)
		return result
	}
	result.Response = resp
	return result
}

func (d *ToolDispatcher) failureResponse(ctx context.Context, err error) map[string]any {
	switch {
	case errors.Is(err, legalapi.ErrNotFound):
		return map[string]any{"status": string(StatusNotFound), "error": "the requested document does not exist"}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return errorResponse("the external service timed out; try again or continue without this source")
	case errors.Is(err, ErrInvalidInput), errors.Is(err, legalapi.ErrInvalidArgument):
		return errorResponse(err.Error())
	default:
		return errorResponse("the tool failed: " + err.Error())
	}
}

func errorResponse(message string) map[string]any {
	return map[string]any{"status": string(StatusError), "error": message}
}

func (d *ToolDispatcher) searchStatutes(ctx context.Context, _ ToolScope, args toolArgs) (map[string]any, error) {
	if d.statutes == nil {
		return nil, errors.New("statute source not set")
	}
	keyword, err := args.RequiredString("keyword")
	if err != nil {
		return nil, err
	}
	q := legalapi.StatuteQuery{Keyword: keyword, InForce: args.Bool("inForce")}
	if year, ok := args.Int("year"); ok {
		q.Year = year
	}

	candidates, err := d.statutes.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return map[string]any{"status": string(StatusNotFound), "results": []any{}, "hint": "try fewer or more general keywords"}, nil
	}
	return map[string]any{"status": string(StatusOK), "results": candidates, "count": len(candidates)}, nil
}

func (d *ToolDispatcher) getStatuteContent(ctx context.Context, _ ToolScope, args toolArgs) (map[string]any, error) {
	if d.knowledge == nil {
		return nil, errors.New("knowledge service not set")
	}
	publisher, year, pos, err := statuteIdentity(args)
	if err != nil {
		return nil, err
	}

	content, err := d.knowledge.GetStatuteContent(ctx, publisher, year, pos, args.String("title"))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":      string(StatusOK),
		"identityKey": string(content.Key),
		"title":       content.Title,
		"content":     content.Content,
		"truncated":   content.Truncated,
		"cached":      content.FromCache,
	}, nil
}

func (d *ToolDispatcher) addStatute(ctx context.Context, scope ToolScope, args toolArgs) (map[string]any, error) {
	if d.knowledge == nil {
		return nil, errors.New("knowledge service not set")
	}
	publisher, year, pos, err := statuteIdentity(args)
	if err != nil {
		return nil, err
	}
	title, err := args.RequiredString("title")
	if err != nil {
		return nil, err
	}

	res, err := d.knowledge.AddStatute(ctx, AddStatuteRequest{
		ConversationID:    scope.ConversationID,
		Publisher:         publisher,
		Year:              year,
		Pos:               pos,
		Title:             title,
		CitedArticles:     args.Strings("citedArticles"),
		ConfirmationToken: args.String("confirmationToken"),
	})
	if err != nil {
		return nil, err
	}
	return addResponse(res), nil
}

func (d *ToolDispatcher) searchCaseLaw(ctx context.Context, _ ToolScope, args toolArgs) (map[string]any, error) {
	if d.rulings == nil {
		return nil, errors.New("ruling source not set")
	}
	query, err := args.RequiredString("query")
	if err != nil {
		return nil, err
	}

	candidates, err := d.rulings.Search(ctx, query, args.String("courtType"))
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return map[string]any{"status": string(StatusNotFound), "results": []any{}, "hint": "retry with a simpler query or without courtType"}, nil
	}
	return map[string]any{"status": string(StatusOK), "results": candidates, "count": len(candidates)}, nil
}

func (d *ToolDispatcher) addRuling(ctx context.Context, scope ToolScope, args toolArgs) (map[string]any, error) {
	if d.knowledge == nil {
		return nil, errors.New("knowledge service not set")
	}
	judgmentID, err := args.RequiredString("judgmentId")
	if err != nil {
		return nil, err
	}

	res, err := d.knowledge.AddRuling(ctx, AddRulingRequest{
		ConversationID:    scope.ConversationID,
		JudgmentID:        judgmentID,
		CaseNumber:        args.String("caseNumber"),
		Title:             args.String("title"),
		Content:           args.String("content"),
		ConfirmationToken: args.String("confirmationToken"),
	})
	if err != nil {
		return nil, err
	}
	return addResponse(res), nil
}

func (d *ToolDispatcher) searchSemanticLibrary(ctx context.Context, scope ToolScope, args toolArgs) (map[string]any, error) {
	if d.ingestion == nil {
		return nil, errors.New("ingestion service not set")
	}
	query, err := args.RequiredString("query")
	if err != nil {
		return nil, err
	}

	res, err := d.ingestion.Search(ctx, SemanticSearchRequest{Query: query, OwnerID: scope.OwnerID})
	if err != nil {
		return nil, err
	}
	if len(res.Chunks) == 0 {
		return map[string]any{
			"status":  string(StatusNotFound),
			"source":  res.Source,
			"results": []any{},
			"hint":    "nothing indexed or found for this query; continue without this source",
		}, nil
	}

	results := make([]map[string]any, 0, len(res.Chunks))
	for _, c := range res.Chunks {
		results = append(results, map[string]any{
			"content":   c.Content,
			"title":     c.Metadata.Title,
			"heading":   c.Metadata.Heading,
			"source":    string(c.Metadata.Source),
			"publisher": c.Metadata.Publisher,
			"year":      c.Metadata.Year,
			"pos":       c.Metadata.Pos,
			"distance":  c.Distance,
		})
	}
	return map[string]any{"status": string(StatusOK), "source": res.Source, "results": results, "count": len(results)}, nil
}

func (d *ToolDispatcher) proposeKnowledge(ctx context.Context, scope ToolScope, args toolArgs) (map[string]any, error) {
	if d.knowledge == nil {
		return nil, errors.New("knowledge service not set")
	}
	req := ProposeRequest{
		ConversationID: scope.ConversationID,
		Source:         models.KnowledgeSource(args.String("source")),
		Publisher:      args.String("publisher"),
		JudgmentID:     args.String("judgmentId"),
		Title:          args.String("title"),
	}
	req.Year, _ = args.Int("year")
	req.Pos, _ = args.Int("pos")

	res, err := d.knowledge.Propose(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.Proposal == nil {
		return map[string]any{"status": string(res.Status), "message": "already in topic knowledge"}, nil
	}
	return map[string]any{
		"status":            string(res.Status),
		"confirmationToken": res.Proposal.Token,
		"identityKey":       string(res.Proposal.IdentityKey),
		"message":           "ask the user to confirm this proposal before adding it",
	}, nil
}

func statuteIdentity(args toolArgs) (string, int, int, error) {
	publisher, err := args.RequiredString("publisher")
	if err != nil {
		return "", 0, 0, err
	}
	year, err := args.RequiredInt("year")
	if err != nil {
		return "", 0, 0, err
	}
	pos, err := args.RequiredInt("pos")
	if err != nil {
		return "", 0, 0, err
	}
	return publisher, year, pos, nil
}

func addResponse(res *AddKnowledgeResult) map[string]any {
	resp := map[string]any{"status": string(res.Status)}
	if res.Message != "" {
		resp["message"] = res.Message
	}
	if res.Item != nil {
		resp["identityKey"] = string(res.Item.Key())
		resp["title"] = res.Item.Title
		if len(res.Item.CitedArticles) > 0 {
			resp["citedArticles"] = res.Item.CitedArticles
		}
	}
	return resp
}
