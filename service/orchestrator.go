package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"lexcounsel-backend/llm"
	"lexcounsel-backend/metrics"
	"lexcounsel-backend/models"

	"github.com/google/uuid"
)

const (
	defaultMaxIterations = 10

	capReachedText  = "I could not finish the research for this question within the allowed number of steps. Please narrow the question or ask me to continue."
	emptyAnswerText = "I was not able to produce an answer. Please rephrase the question."
)

// ToolExecutor declares and runs the tools available to the model
type ToolExecutor interface {
	Declarations() []llm.ToolDeclaration
	DispatchAll(ctx context.Context, scope ToolScope, calls []models.ToolCall) []models.ToolResult
}

// Orchestrator runs the model and tool loop for one user turn
type Orchestrator struct {
	model                llm.Model
	tools                ToolExecutor
	maxIterations        int
	confirmationRequired bool

	metrics *metrics.Metrics
	logger  *log.Logger
}

// OrchestratorOption is a functional option for Orchestrator
type OrchestratorOption func(*Orchestrator)

// OrchestratorWithModel sets the language model
func OrchestratorWithModel(m llm.Model) OrchestratorOption {
	return func(o *Orchestrator) {
		o.model = m
	}
}

// OrchestratorWithTools sets the tool executor
func OrchestratorWithTools(t ToolExecutor) OrchestratorOption {
	return func(o *Orchestrator) {
		o.tools = t
	}
}

// OrchestratorWithMaxIterations caps model round trips per turn
func OrchestratorWithMaxIterations(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.maxIterations = n
	}
}

// OrchestratorWithConfirmationRequired selects the approval policy text
func OrchestratorWithConfirmationRequired(required bool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.confirmationRequired = required
	}
}

// OrchestratorWithMetrics sets the metrics recorder
func OrchestratorWithMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// OrchestratorWithLogger sets the logger
func OrchestratorWithLogger(l *log.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		maxIterations:        defaultMaxIterations,
		confirmationRequired: true,
		logger:               log.New(log.Writer(), "[chat] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxIterations < 1 {
		o.maxIterations = defaultMaxIterations
	}
	return o
}

// TurnRequest is everything the orchestrator needs for one turn
type TurnRequest struct {
	ConversationID uuid.UUID
	OwnerID        uuid.UUID
	Persona        models.Persona
	History        []llm.Message // oldest first, ending with the new user message
	Knowledge      []models.KnowledgeItem
	Attachments    []models.Attachment
	// ConfirmedProposals are approved by the user but not yet added
	ConfirmedProposals []models.KnowledgeProposal
}

// TurnResult is the final answer of a turn
type TurnResult struct {
	Text       string
	Usage      models.TokenUsage
	Iterations int
	ToolCalls  int
	CapReached bool
}

// RunTurn sends the history to the model and executes requested tools until
// the model answers without tool calls or the iteration cap is reached. At
// the cap the last text the model produced is returned instead of an error.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if o.model == nil {
		return nil, fmt.Errorf("%w: no model configured", ErrModelUnavailable)
	}

	persona, err := PersonaInstruction(req.Persona)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown persona %q", ErrInvalidInput, req.Persona)
	}

	messages := NormalizeHistory(req.History)
	if len(messages) == 0 || messages[len(messages)-1].Role != models.RoleUser {
		return nil, fmt.Errorf("%w: history must end with a user message", ErrInvalidInput)
	}
	if len(req.Attachments) > 0 {
		last := &messages[len(messages)-1]
		last.Parts = append(last.Parts, attachmentParts(req.Attachments)...)
	}

	llmReq := llm.Request{
		SystemInstruction: buildSystemInstruction(persona, req.Knowledge, req.ConfirmedProposals, o.confirmationRequired),
		Messages:          messages,
	}
	if o.tools != nil {
		llmReq.Tools = o.tools.Declarations()
	}
	scope := ToolScope{ConversationID: req.ConversationID, OwnerID: req.OwnerID}

	result := &TurnResult{}
	lastText := ""
	for i := 1; i <= o.maxIterations; i++ {
		resp, err := o.model.Generate(ctx, llmReq)
		if err != nil {
			o.metrics.RecordModelCall("error")
			if errors.Is(err, llm.ErrUnavailable) {
				return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
			}
			return nil, fmt.Errorf("model call failed: %w", err)
		}
		o.metrics.RecordModelCall("ok")

		result.Iterations = i
		result.Usage = result.Usage.Add(resp.Usage)
		if resp.Text != "" {
			lastText = resp.Text
		}

		if !resp.HasToolCalls() || o.tools == nil {
			result.Text = resp.Text
			if result.Text == "" {
				result.Text = emptyAnswerText
			}
			return result, nil
		}

		calls := withCallIDs(resp.ToolCalls, i)
		result.ToolCalls += len(calls)
		results := o.tools.DispatchAll(ctx, scope, calls)

		modelParts := make([]llm.Part, 0, len(calls)+1)
		if resp.Text != "" {
			modelParts = append(modelParts, llm.TextPart(resp.Text))
		}
		for j := range calls {
			modelParts = append(modelParts, llm.Part{ToolCall: &calls[j]})
		}
		resultParts := make([]llm.Part, 0, len(results))
		for j := range results {
			resultParts = append(resultParts, llm.Part{ToolResult: &results[j]})
		}
		llmReq.Messages = append(llmReq.Messages,
			llm.Message{Role: models.RoleModel, Parts: modelParts},
			llm.Message{Role: models.RoleUser, Parts: resultParts},
		)
	}

	o.logger.Printf("Warning: conversation %s reached the iteration cap (%d)", req.ConversationID, o.maxIterations)
	result.CapReached = true
	result.Text = lastText
	if result.Text == "" {
		result.Text = capReachedText
	}
	return result, nil
}

// withCallIDs makes call ids unique within the turn
func withCallIDs(calls []models.ToolCall, iteration int) []models.ToolCall {
	out := make([]models.ToolCall, len(calls))
	for i, c := range calls {
		c.ID = fmt.Sprintf("it%d-call%d", iteration, i+1)
		if c.Arguments == nil {
			c.Arguments = map[string]any{}
		}
		out[i] = c
	}
	return out
}
