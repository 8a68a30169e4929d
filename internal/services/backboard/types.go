package backboard

import "encoding/json"

// MemoryMode controls whether a chat message may write assistant memories.
type MemoryMode string

const (
	MemoryModeReadonly MemoryMode = "Readonly"
	MemoryModeAuto     MemoryMode = "Auto"
)

// Assistant is the hosted long-term profile for one user.
type Assistant struct {
	AssistantID  string `json:"assistant_id"`
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// CreateAssistantRequest creates or updates an assistant.
type CreateAssistantRequest struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// Thread is a temporary chat session attached to an assistant.
type Thread struct {
	ThreadID    string          `json:"thread_id"`
	AssistantID string          `json:"assistant_id,omitempty"`
	Messages    []ThreadMessage `json:"messages,omitempty"`
}

// ThreadMessage is one message in a thread's history.
type ThreadMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"`
}

// AddMessageRequest sends a chat message into a thread. Tools, when present,
// are serialized into the multipart form as a JSON field.
type AddMessageRequest struct {
	Content     string
	Memory      MemoryMode
	Stream      bool
	LLMProvider string
	ModelName   string
	Tools       []ToolDefinition
	Metadata    map[string]any
}

// ToolDefinition describes one callable tool in the OpenAI function format.
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function half of a tool definition.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the invocation arguments as raw JSON.
type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// CallName returns the tool name regardless of which field the API set.
func (c ToolCall) CallName() string {
	if c.Function.Name != "" {
		return c.Function.Name
	}
	return c.Name
}

// ToolOutput is the result of executing one tool call.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// MessageResponse is the reply to AddMessage or SubmitToolOutputs. Status
// "requires_action" means ToolCalls must be executed and submitted.
type MessageResponse struct {
	Content   string     `json:"content"`
	RunID     string     `json:"run_id,omitempty"`
	Status    string     `json:"status,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// RequiresAction reports whether the run is waiting on tool outputs.
func (m *MessageResponse) RequiresAction() bool {
	return m.Status == "requires_action" && len(m.ToolCalls) > 0
}

// Document is a file attached to an assistant or thread.
type Document struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename,omitempty"`
	Status     string `json:"status,omitempty"`
}

// Indexing document statuses considered in-flight. A thread with any such
// document is not ready for chat.
var pendingStatuses = map[string]bool{
	"pending":    true,
	"processing": true,
	"indexing":   true,
}

// IsPending reports whether the document is still being indexed.
func (d Document) IsPending() bool {
	return pendingStatuses[d.Status]
}
