package models

// ToolCall is a tool invocation issued by the model.
// ID is assigned per model turn so results can be matched back 1:1.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult answers one ToolCall
type ToolResult struct {
	CallID   string         `json:"call_id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Status returns the status field of the response, if any
func (r ToolResult) Status() string {
	s, _ := r.Response["status"].(string)
	return s
}
