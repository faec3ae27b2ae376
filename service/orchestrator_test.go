package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"lexcounsel-backend/llm"
	"lexcounsel-backend/models"

	"github.com/google/uuid"
)

type recordingTools struct {
	calls [][]models.ToolCall
}

func (r *recordingTools) Declarations() []llm.ToolDeclaration {
	return toolDeclarations(true)
}

func (r *recordingTools) DispatchAll(ctx context.Context, scope ToolScope, calls []models.ToolCall) []models.ToolResult {
	r.calls = append(r.calls, calls)
	out := make([]models.ToolResult, len(calls))
	for i, c := range calls {
		out[i] = models.ToolResult{CallID: c.ID, Name: c.Name, Response: map[string]any{"status": "ok", "echo": c.Arguments["keyword"]}}
	}
	return out
}

func userHistory(text string) []llm.Message {
	return []llm.Message{msg(models.RoleUser, text)}
}

func TestRunTurnWithoutTools(t *testing.T) {
	model := &fakeModel{GenerateFunc: func(ctx context.Context, req llm.Request, call int) (*llm.Response, error) {
		return &llm.Response{Text: "Odpowiedź", Usage: models.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}, nil
	}}
	o := NewOrchestrator(OrchestratorWithModel(model), OrchestratorWithTools(&recordingTools{}))

	res, err := o.RunTurn(context.Background(), TurnRequest{History: userHistory("Pytanie")})
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.Text != "Odpowiedź" || res.Iterations != 1 || res.CapReached {
		t.Errorf("result = %+v", res)
	}
	if res.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", res.Usage)
	}
}

func TestRunTurnDispatchesToolsAndFeedsResultsBack(t *testing.T) {
	tools := &recordingTools{}
	model := &fakeModel{GenerateFunc: func(ctx context.Context, req llm.Request, call int) (*llm.Response, error) {
		if call == 1 {
			return &llm.Response{
				ToolCalls: []models.ToolCall{
					{Name: string(ToolSearchStatutes), Arguments: map[string]any{"keyword": "najem"}},
					{Name: string(ToolSearchStatutes), Arguments: map[string]any{"keyword": "dzierżawa"}},
				},
				Usage: models.TokenUsage{TotalTokens: 7},
			}, nil
		}
		return &llm.Response{Text: "Gotowe", Usage: models.TokenUsage{TotalTokens: 3}}, nil
	}}
	o := NewOrchestrator(OrchestratorWithModel(model), OrchestratorWithTools(tools))

	res, err := o.RunTurn(context.Background(), TurnRequest{History: userHistory("Pytanie")})
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.Iterations != 2 || res.ToolCalls != 2 || res.Usage.TotalTokens != 10 {
		t.Errorf("result = %+v", res)
	}
	if len(tools.calls) != 1 || len(tools.calls[0]) != 2 {
		t.Fatalf("dispatch batches = %v", tools.calls)
	}

	second := model.requests[1].Messages
	if len(second) != 3 {
		t.Fatalf("second request has %d messages, want 3", len(second))
	}
	callMsg, resultMsg := second[1], second[2]
	if callMsg.Role != models.RoleModel || resultMsg.Role != models.RoleUser {
		t.Errorf("roles = %s, %s", callMsg.Role, resultMsg.Role)
	}
	if len(resultMsg.Parts) != 2 {
		t.Fatalf("result parts = %d, want 2", len(resultMsg.Parts))
	}
	for i, p := range resultMsg.Parts {
		if p.ToolResult == nil || p.ToolResult.CallID != callMsg.Parts[i].ToolCall.ID {
			t.Errorf("result %d not matched to its call", i)
		}
	}
}

func TestRunTurnStopsAtIterationCap(t *testing.T) {
	model := &fakeModel{GenerateFunc: func(ctx context.Context, req llm.Request, call int) (*llm.Response, error) {
		return &llm.Response{
			Text:      fmt.Sprintf("szukam %d", call),
			ToolCalls: []models.ToolCall{{Name: string(ToolSearchStatutes), Arguments: map[string]any{"keyword": "x"}}},
		}, nil
	}}
	o := NewOrchestrator(OrchestratorWithModel(model), OrchestratorWithTools(&recordingTools{}))

	res, err := o.RunTurn(context.Background(), TurnRequest{History: userHistory("Pytanie")})
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if !res.CapReached || res.Iterations != defaultMaxIterations {
		t.Errorf("result = %+v", res)
	}
	if model.calls() != defaultMaxIterations {
		t.Errorf("model calls = %d, want %d", model.calls(), defaultMaxIterations)
	}
	if res.Text != "szukam 10" {
		t.Errorf("text = %q, want last model text", res.Text)
	}
}

func TestRunTurnCapWithoutTextUsesFallback(t *testing.T) {
	model := &fakeModel{GenerateFunc: func(ctx context.Context, req llm.Request, call int) (*llm.Response, error) {
		return &llm.Response{ToolCalls: []models.ToolCall{{Name: "x"}}}, nil
	}}
	o := NewOrchestrator(OrchestratorWithModel(model), OrchestratorWithTools(&recordingTools{}), OrchestratorWithMaxIterations(3))

	res, err := o.RunTurn(context.Background(), TurnRequest{History: userHistory("Pytanie")})
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.Text != capReachedText || model.calls() != 3 {
		t.Errorf("text = %q, calls = %d", res.Text, model.calls())
	}
}

func TestRunTurnModelUnavailable(t *testing.T) {
	model := &fakeModel{GenerateFunc: func(ctx context.Context, req llm.Request, call int) (*llm.Response, error) {
		return nil, fmt.Errorf("%w: connection refused", llm.ErrUnavailable)
	}}
	o := NewOrchestrator(OrchestratorWithModel(model))

	_, err := o.RunTurn(context.Background(), TurnRequest{History: userHistory("Pytanie")})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}

	_, err = NewOrchestrator().RunTurn(context.Background(), TurnRequest{History: userHistory("Pytanie")})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("no model: err = %v, want ErrModelUnavailable", err)
	}
}

func TestRunTurnRejectsInvalidInputBeforeCallingModel(t *testing.T) {
	model := &fakeModel{GenerateFunc: func(ctx context.Context, req llm.Request, call int) (*llm.Response, error) {
		return &llm.Response{Text: "x"}, nil
	}}
	o := NewOrchestrator(OrchestratorWithModel(model))

	cases := []TurnRequest{
		{},
		{History: []llm.Message{msg(models.RoleUser, "a"), msg(models.RoleModel, "b")}},
		{History: userHistory("a"), Persona: "poet"},
	}
	for i, req := range cases {
		if _, err := o.RunTurn(context.Background(), req); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: err = %v, want ErrInvalidInput", i, err)
		}
	}
	if model.calls() != 0 {
		t.Errorf("model called %d times", model.calls())
	}
}

func TestRunTurnAssemblesContext(t *testing.T) {
	model := &fakeModel{GenerateFunc: func(ctx context.Context, req llm.Request, call int) (*llm.Response, error) {
		return &llm.Response{Text: "ok"}, nil
	}}
	o := NewOrchestrator(OrchestratorWithModel(model))

	_, err := o.RunTurn(context.Background(), TurnRequest{
		ConversationID: uuid.New(),
		Persona:        models.PersonaDrafting,
		History: []llm.Message{
			msg(models.RoleModel, "Witam"),
			msg(models.RoleUser, "Przygotuj pozew"),
		},
		Knowledge: []models.KnowledgeItem{{
			Source: models.SourceStatute, Publisher: "DU", Year: 2023, Pos: 2809,
			Title: "Example Act", Content: "Art. 1. Treść.",
		}},
		Attachments: []models.Attachment{
			{Filename: "fakty.txt", MimeType: "text/plain", Data: []byte("Umowa z 1 marca.")},
			{Filename: "umowa.pdf", MimeType: "application/pdf", Data: []byte("%PDF")},
		},
	})
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	req := model.requests[0]
	sys := req.SystemInstruction
	drafting, _ := PersonaInstruction(models.PersonaDrafting)
	personaAt := strings.Index(sys, drafting)
	knowledgeAt := strings.Index(sys, "EXISTING KNOWLEDGE")
	timelineAt := strings.Index(sys, TimelineStartMarker)
	if personaAt != 0 || knowledgeAt <= personaAt || timelineAt <= knowledgeAt {
		t.Errorf("system instruction out of order: persona %d, knowledge %d, timeline %d", personaAt, knowledgeAt, timelineAt)
	}
	if !strings.Contains(sys, "Example Act") || !strings.Contains(sys, "Art. 1. Treść.") {
		t.Errorf("knowledge item missing from system instruction")
	}

	if len(req.Messages) != 3 || req.Messages[0].Role != models.RoleUser {
		t.Fatalf("history not normalized: %d messages", len(req.Messages))
	}
	last := req.Messages[2]
	if len(last.Parts) != 4 {
		t.Fatalf("last message parts = %d, want text + text attachment + label + blob", len(last.Parts))
	}
	if !strings.Contains(last.Parts[1].Text, "Umowa z 1 marca.") {
		t.Errorf("text attachment not inlined: %q", last.Parts[1].Text)
	}
	if last.Parts[3].Blob == nil || last.Parts[3].Blob.MIMEType != "application/pdf" {
		t.Errorf("pdf not attached as blob")
	}
}
