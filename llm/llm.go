// Package llm is the model invocation boundary: provider-neutral request and
// response types plus a lazily initialized process-wide model provider.
package llm

import (
	"context"
	"errors"

	"lexcounsel-backend/models"
)

var (
	// ErrUnavailable means the model backend is not configured or cannot be reached
	ErrUnavailable = errors.New("language model unavailable")
	// ErrBlocked means the model refused to answer the prompt
	ErrBlocked = errors.New("language model blocked the request")
)

// Blob is inline binary content such as a PDF attachment
type Blob struct {
	MIMEType string
	Data     []byte
}

// Part is one element of a message. Exactly one field is set.
type Part struct {
	Text       string
	Blob       *Blob
	ToolCall   *models.ToolCall
	ToolResult *models.ToolResult
}

// TextPart builds a text part
func TextPart(text string) Part {
	return Part{Text: text}
}

// Message is one entry of the history sent to the model
type Message struct {
	Role  models.Role
	Parts []Part
}

// ParamType is the JSON type of a tool parameter
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array" // array of strings
)

// Parameter describes one tool argument
type Parameter struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Enum        []string
}

// ToolDeclaration describes a tool the model may call
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// Request is a single model invocation
type Request struct {
	SystemInstruction string
	Tools             []ToolDeclaration
	Messages          []Message
}

// Response carries either tool calls, final text, or both
type Response struct {
	Text         string
	ToolCalls    []models.ToolCall
	Usage        models.TokenUsage
	FinishReason string
}

// HasToolCalls reports whether the model asked for tools
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// Model generates a response for a request
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
