package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"lexcounsel-backend/models"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiModel implements Model on top of the Gemini SDK
type GeminiModel struct {
	client      *genai.Client
	modelName   string
	temperature float32
}

// NewGeminiFactory returns a Factory that builds a Gemini-backed model
func NewGeminiFactory(apiKey, modelName string) Factory {
	return func(ctx context.Context) (Model, error) {
		if apiKey == "" {
			return nil, errors.New("GEMINI_API_KEY not set")
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		log.Printf("Gemini client initialized (model %s)", modelName)
		return &GeminiModel{client: client, modelName: modelName, temperature: 0.3}, nil
	}
}

// Generate sends the history to Gemini and converts the first candidate back
func (m *GeminiModel) Generate(ctx context.Context, req Request) (*Response, error) {
	contents, err := toContents(req.Messages)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, errors.New("request has no messages")
	}

	gm := m.client.GenerativeModel(m.modelName)
	gm.SetTemperature(m.temperature)
	if req.SystemInstruction != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemInstruction)}}
	}
	if len(req.Tools) > 0 {
		gm.Tools = []*genai.Tool{{FunctionDeclarations: toFunctionDeclarations(req.Tools)}}
	}

	cs := gm.StartChat()
	last := contents[len(contents)-1]
	cs.History = contents[:len(contents)-1]

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return nil, fmt.Errorf("%w: %v", ErrBlocked, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fromResponse(resp), nil
}

func toContents(messages []Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for i, msg := range messages {
		content := &genai.Content{Role: string(msg.Role)}
		for _, p := range msg.Parts {
			switch {
			case p.ToolCall != nil:
				content.Parts = append(content.Parts, genai.FunctionCall{
					Name: p.ToolCall.Name,
					Args: jsonObject(p.ToolCall.Arguments),
				})
			case p.ToolResult != nil:
				content.Parts = append(content.Parts, genai.FunctionResponse{
					Name:     p.ToolResult.Name,
					Response: jsonObject(p.ToolResult.Response),
				})
			case p.Blob != nil:
				content.Parts = append(content.Parts, genai.Blob{MIMEType: p.Blob.MIMEType, Data: p.Blob.Data})
			case p.Text != "":
				content.Parts = append(content.Parts, genai.Text(p.Text))
			}
		}
		if len(content.Parts) == 0 {
			return nil, fmt.Errorf("message %d has no content", i)
		}
		contents = append(contents, content)
	}
	return contents, nil
}

// jsonObject round-trips v through JSON so it only holds types the SDK can
// convert to protobuf Struct values (typed slices and structs are not accepted).
func jsonObject(v map[string]any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"status": "error", "error": "unserializable tool payload"}
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"status": "error", "error": "unserializable tool payload"}
	}
	return out
}

func toFunctionDeclarations(tools []ToolDeclaration) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{},
		}
		for _, p := range t.Parameters {
			schema.Properties[p.Name] = toSchema(p)
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return decls
}

func toSchema(p Parameter) *genai.Schema {
	s := &genai.Schema{Description: p.Description}
	switch p.Type {
	case ParamInteger:
		s.Type = genai.TypeInteger
	case ParamBoolean:
		s.Type = genai.TypeBoolean
	case ParamArray:
		s.Type = genai.TypeArray
		s.Items = &genai.Schema{Type: genai.TypeString}
	default:
		s.Type = genai.TypeString
		if len(p.Enum) > 0 {
			s.Format = "enum"
			s.Enum = p.Enum
		}
	}
	return s
}

func fromResponse(resp *genai.GenerateContentResponse) *Response {
	out := &Response{}
	if resp == nil {
		return out
	}
	if resp.UsageMetadata != nil {
		out.Usage = models.TokenUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		return out
	}

	cand := resp.Candidates[0]
	out.FinishReason = cand.FinishReason.String()
	if cand.Content == nil {
		return out
	}

	var text strings.Builder
	for _, part := range cand.Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			text.WriteString(string(v))
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				ID:        fmt.Sprintf("call-%d", len(out.ToolCalls)+1),
				Name:      v.Name,
				Arguments: v.Args,
			})
		}
	}
	out.Text = text.String()
	return out
}
