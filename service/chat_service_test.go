package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lexcounsel-backend/llm"
	"lexcounsel-backend/models"
	"lexcounsel-backend/storage"

	"github.com/google/uuid"
)

type chatFixture struct {
	chat          *ChatService
	conversations *ConversationService
	store         *fakeConversationStore
	timeline      *fakeTimelineStore
	knowledge     *knowledgeFixture
	model         *fakeModel
	owner         uuid.UUID
}

func newChatFixture(t *testing.T, generate func(ctx context.Context, req llm.Request, call int) (*llm.Response, error)) *chatFixture {
	t.Helper()
	f := &chatFixture{
		store:     newFakeConversationStore(),
		timeline:  &fakeTimelineStore{},
		knowledge: newKnowledgeFixture(true),
		model:     &fakeModel{GenerateFunc: generate},
		owner:     uuid.New(),
	}

	local, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	files := &fakeFileStore{files: map[uuid.UUID]*models.File{}}
	fileID := uuid.New()
	path, err := local.Upload(context.Background(), storage.Object{ID: fileID, OwnerID: f.owner, Filename: "fakty.txt"}, strings.NewReader("Umowa najmu z 1 marca 2024."))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	files.files[fileID] = &models.File{ID: fileID, UserID: f.owner, Filename: "fakty.txt", MimeType: "text/plain", StoragePath: path}

	dispatcher := newTestDispatcher(t, f.knowledge)
	f.chat = NewChatService(
		ChatWithConversationStore(f.store),
		ChatWithKnowledgeService(f.knowledge.svc),
		ChatWithAttachmentLoader(NewAttachmentLoader(files, local)),
		ChatWithOrchestrator(NewOrchestrator(OrchestratorWithModel(f.model), OrchestratorWithTools(dispatcher))),
		ChatWithTimelineExtractor(NewTimelineExtractor(TimelineWithStore(f.timeline))),
		ChatWithModelReadiness(fakeReadiness{}),
	)
	f.conversations = NewConversationService(
		ConversationWithStore(f.store),
		ConversationWithTimelineStore(f.timeline),
		ConversationWithKnowledgeService(f.knowledge.svc),
	)
	return f
}

func TestSendMessagePersistsTurnsAndTimeline(t *testing.T) {
	f := newChatFixture(t, func(ctx context.Context, req llm.Request, call int) (*llm.Response, error) {
		return &llm.Response{
			Text:  wellFormedAnswer,
			Usage: models.TokenUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
		}, nil
	})
	ctx := context.Background()

	conv, err := f.conversations.CreateConversation(ctx, CreateConversationRequest{OwnerID: f.owner, Title: "Najem"})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	res, err := f.chat.SendMessage(ctx, SendMessageRequest{ConversationID: conv.ID, OwnerID: f.owner, Content: "Kiedy mija termin?"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if strings.Contains(res.Turn.Content, TimelineStartMarker) {
		t.Errorf("stored answer contains timeline markers")
	}
	if len(res.Timeline) != 2 {
		t.Errorf("timeline = %d events, want 2", len(res.Timeline))
	}
	if res.Turn.Usage.TotalTokens != 120 {
		t.Errorf("usage = %+v", res.Turn.Usage)
	}

	full, err := f.conversations.GetConversation(ctx, f.owner, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(full.Turns) != 2 || full.Turns[0].Role != models.RoleUser || full.Turns[1].Role != models.RoleModel {
		t.Fatalf("turns = %+v", full.Turns)
	}

	events, err := f.conversations.ListTimeline(ctx, f.owner, conv.ID)
	if err != nil || len(events) != 2 {
		t.Errorf("ListTimeline = %d events, err %v", len(events), err)
	}
}

func TestSendMessageRejectsOtherOwners(t *testing.T) {
	f := newChatFixture(t, func(ctx context.Context, req llm.Request, call int) (*llm.Response, error) {
		return &llm.Response{Text: "x"}, nil
	})
	ctx := context.Background()
	conv, _ := f.conversations.CreateConversation(ctx, CreateConversationRequest{OwnerID: f.owner})

	_, err := f.chat.SendMessage(ctx, SendMessageRequest{ConversationID: conv.ID, OwnerID: uuid.New(), Content: "hej"})
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("err = %v, want ErrConversationNotFound", err)
	}
	if f.model.calls() != 0 {
		t.Errorf("model was called")
	}
}

func TestSendMessageValidationAndAvailability(t *testing.T) {
	f := newChatFixture(t, func(ctx context.Context, req llm.Request, call int) (*llm.Response, error) {
		return &llm.Response{Text: "x"}, nil
	})
	ctx := context.Background()
	conv, _ := f.conversations.CreateConversation(ctx, CreateConversationRequest{OwnerID: f.owner})

	_, err := f.chat.SendMessage(ctx, SendMessageRequest{ConversationID: conv.ID, OwnerID: f.owner, Content: "   "})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty content: err = %v, want ErrInvalidInput", err)
	}

	f.chat.readiness = fakeReadiness{err: llm.ErrUnavailable}
	_, err = f.chat.SendMessage(ctx, SendMessageRequest{ConversationID: conv.ID, OwnerID: f.owner, Content: "hej"})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("unavailable model: err = %v, want ErrModelUnavailable", err)
	}
	if len(f.store.turns[conv.ID]) != 0 {
		t.Errorf("turns stored for a failed precondition")
	}
}

func TestSendMessageInlinesAttachments(t *testing.T) {
	f := newChatFixture(t, func(ctx context.Context, req llm.Request, call int) (*llm.Response, error) {
		return &llm.Response{Text: "Przeczytałem."}, nil
	})
	ctx := context.Background()
	conv, _ := f.conversations.CreateConversation(ctx, CreateConversationRequest{OwnerID: f.owner})

	var fileID uuid.UUID
	loader := f.chat.attachments
	for id := range loader.files.(*fakeFileStore).files {
		fileID = id
	}

	_, err := f.chat.SendMessage(ctx, SendMessageRequest{ConversationID: conv.ID, OwnerID: f.owner, AttachmentIDs: []uuid.UUID{fileID}})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	last := f.model.requests[0].Messages[len(f.model.requests[0].Messages)-1]
	found := false
	for _, p := range last.Parts {
		if strings.Contains(p.Text, "Umowa najmu z 1 marca 2024.") {
			found = true
		}
	}
	if !found {
		t.Errorf("attachment text not sent to the model")
	}

	_, err = f.chat.SendMessage(ctx, SendMessageRequest{ConversationID: conv.ID, OwnerID: f.owner, Content: "x", AttachmentIDs: []uuid.UUID{uuid.New()}})
	if !errors.Is(err, ErrAttachmentNotFound) {
		t.Errorf("unknown attachment: err = %v, want ErrAttachmentNotFound", err)
	}
}

func TestProposalFlowThroughChat(t *testing.T) {
	var token string
	f := newChatFixture(t, func(ctx context.Context, req llm.Request, call int) (*llm.Response, error) {
		last := req.Messages[len(req.Messages)-1]
		if len(last.Parts) > 0 && last.Parts[0].ToolResult != nil {
			if tok, ok := last.Parts[0].ToolResult.Response["confirmationToken"].(string); ok {
				token = tok
			}
			return &llm.Response{Text: "Proponuję dodać ustawę. Czy potwierdzasz?"}, nil
		}
		return &llm.Response{ToolCalls: []models.ToolCall{{
			Name: string(ToolProposeKnowledge),
			Arguments: map[string]any{
				"source": "statute", "publisher": "DU", "year": float64(2023), "pos": float64(2809), "title": "Example Act",
			},
		}}}, nil
	})
	ctx := context.Background()
	conv, _ := f.conversations.CreateConversation(ctx, CreateConversationRequest{OwnerID: f.owner})

	res, err := f.chat.SendMessage(ctx, SendMessageRequest{ConversationID: conv.ID, OwnerID: f.owner, Content: "Znajdź ustawę"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(res.PendingProposals) != 1 || res.PendingProposals[0].Token != token || token == "" {
		t.Fatalf("pending = %+v, token %q", res.PendingProposals, token)
	}

	if _, err := f.conversations.ConfirmProposal(ctx, uuid.New(), conv.ID, token); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("foreign confirm: err = %v", err)
	}
	p, err := f.conversations.ConfirmProposal(ctx, f.owner, conv.ID, token)
	if err != nil {
		t.Fatalf("ConfirmProposal: %v", err)
	}
	if p.Status != models.ProposalConfirmed {
		t.Errorf("status = %s", p.Status)
	}
}

func TestConfirmedProposalIsAddedOnNextTurn(t *testing.T) {
	var proposed string
	var added map[string]any
	f := newChatFixture(t, func(ctx context.Context, req llm.Request, call int) (*llm.Response, error) {
		last := req.Messages[len(req.Messages)-1]
		if len(last.Parts) > 0 && last.Parts[0].ToolResult != nil {
			res := last.Parts[0].ToolResult
			if res.Name == string(ToolAddStatute) {
				added = res.Response
				return &llm.Response{Text: "Dodano ustawę do wiedzy tematu."}, nil
			}
			proposed, _ = res.Response["confirmationToken"].(string)
			return &llm.Response{Text: "Proponuję dodać ustawę. Czy potwierdzasz?"}, nil
		}
		if _, rest, ok := strings.Cut(req.SystemInstruction, "confirmationToken="); ok {
			token, _, _ := strings.Cut(rest, "\n")
			return &llm.Response{ToolCalls: []models.ToolCall{{
				Name: string(ToolAddStatute),
				Arguments: map[string]any{
					"publisher": "DU", "year": float64(2023), "pos": float64(2809), "title": "Example Act",
					"confirmationToken": token,
				},
			}}}, nil
		}
		return &llm.Response{ToolCalls: []models.ToolCall{{
			Name: string(ToolProposeKnowledge),
			Arguments: map[string]any{
				"source": "statute", "publisher": "DU", "year": float64(2023), "pos": float64(2809), "title": "Example Act",
			},
		}}}, nil
	})
	ctx := context.Background()
	conv, _ := f.conversations.CreateConversation(ctx, CreateConversationRequest{OwnerID: f.owner})

	if _, err := f.chat.SendMessage(ctx, SendMessageRequest{ConversationID: conv.ID, OwnerID: f.owner, Content: "Znajdź ustawę"}); err != nil {
		t.Fatalf("first SendMessage: %v", err)
	}
	if proposed == "" {
		t.Fatalf("no proposal made")
	}
	if _, err := f.conversations.ConfirmProposal(ctx, f.owner, conv.ID, proposed); err != nil {
		t.Fatalf("ConfirmProposal: %v", err)
	}

	if _, err := f.chat.SendMessage(ctx, SendMessageRequest{ConversationID: conv.ID, OwnerID: f.owner, Content: "Tak, dodaj"}); err != nil {
		t.Fatalf("second SendMessage: %v", err)
	}
	secondTurn := f.model.requests[2].SystemInstruction
	if !strings.Contains(secondTurn, "confirmationToken="+proposed) || !strings.Contains(secondTurn, "publisher=DU year=2023 pos=2809") {
		t.Fatalf("confirmed proposal missing from system instruction:\n%s", secondTurn)
	}
	if added == nil || added["status"] != string(StatusOK) {
		t.Fatalf("add result = %+v", added)
	}
	if n := f.knowledge.topics.count(conv.ID); n != 1 {
		t.Fatalf("topic knowledge items = %d, want 1", n)
	}

	// the token is spent and no longer offered
	if _, err := f.chat.SendMessage(ctx, SendMessageRequest{ConversationID: conv.ID, OwnerID: f.owner, Content: "Dziękuję"}); err != nil {
		t.Fatalf("third SendMessage: %v", err)
	}
	if sys := f.model.requests[len(f.model.requests)-1].SystemInstruction; strings.Contains(sys, proposed) {
		t.Errorf("consumed token still in system instruction")
	}
}
