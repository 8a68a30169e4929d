package backboard

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/tidyplan/tidyplan-api/internal/database"
)

const (
	// DefaultSessionTTL is how long a chat thread stays active without
	// being explicitly reset.
	DefaultSessionTTL = 120 * time.Minute

	defaultSystemPrompt        = "You are a helpful assistant. Be concise."
	defaultAssistantNamePrefix = "user"
)

// API is the subset of the Backboard client the wrapper needs. Tests
// substitute a fake.
type API interface {
	CreateAssistant(ctx context.Context, req *CreateAssistantRequest) (*Assistant, error)
	CreateThread(ctx context.Context, assistantID string) (*Thread, error)
	GetThread(ctx context.Context, threadID string) (*Thread, error)
	DeleteThread(ctx context.Context, threadID string) error
	AddMessage(ctx context.Context, threadID string, req *AddMessageRequest) (*MessageResponse, error)
	ListThreadDocuments(ctx context.Context, threadID string) ([]Document, error)
	AddMemory(ctx context.Context, assistantID, content string, metadata map[string]any) error
	UploadThreadDocument(ctx context.Context, threadID, filename, contentType string, data io.Reader) (*Document, error)
	UploadAssistantDocument(ctx context.Context, assistantID, filename, contentType string, data io.Reader) (*Document, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*MessageResponse, error)
}

// ChatOptions tune a single chat call.
type ChatOptions struct {
	Remember    bool
	MemoryMode  MemoryMode
	LLMProvider string
	ModelName   string
	Tools       []ToolDefinition
}

// Wrapper manages the assistant-per-user / thread-per-session pattern:
// one long-term assistant holds memories and permanent documents, one
// temporary thread per session holds the chat and its uploads.
type Wrapper struct {
	client       API
	sessions     database.SessionRepositoryInterface
	ttl          time.Duration
	systemPrompt string
}

// NewWrapper creates a session wrapper around the Backboard client.
func NewWrapper(client API, sessions database.SessionRepositoryInterface, ttl time.Duration) *Wrapper {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Wrapper{
		client:       client,
		sessions:     sessions,
		ttl:          ttl,
		systemPrompt: defaultSystemPrompt,
	}
}

// EnsureAssistant returns the user's assistant ID, creating the assistant
// on first use.
func (w *Wrapper) EnsureAssistant(ctx context.Context, userID uuid.UUID) (string, error) {
	existing, err := w.sessions.GetAssistantID(ctx, userID)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}

	assistant, err := w.client.CreateAssistant(ctx, &CreateAssistantRequest{
		Name:         fmt.Sprintf("%s-%s", defaultAssistantNamePrefix, userID),
		SystemPrompt: w.systemPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("ensure assistant: %w", err)
	}
	if assistant.AssistantID == "" {
		return "", fmt.Errorf("ensure assistant: empty assistant_id in response")
	}

	if err := w.sessions.SetAssistantID(ctx, userID, assistant.AssistantID); err != nil {
		return "", err
	}
	return assistant.AssistantID, nil
}

// StartSession returns the user's active thread ID, creating a fresh thread
// when none exists or the previous one expired.
func (w *Wrapper) StartSession(ctx context.Context, userID uuid.UUID) (string, error) {
	now := time.Now().UTC()
	active, err := w.sessions.GetThreadID(ctx, userID, now)
	if err != nil {
		return "", err
	}
	if active != "" {
		return active, nil
	}

	assistantID, err := w.EnsureAssistant(ctx, userID)
	if err != nil {
		return "", err
	}

	thread, err := w.client.CreateThread(ctx, assistantID)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	if thread.ThreadID == "" {
		return "", fmt.Errorf("start session: empty thread_id in response")
	}

	if err := w.sessions.SetThread(ctx, userID, thread.ThreadID, now.Add(w.ttl)); err != nil {
		return "", err
	}
	return thread.ThreadID, nil
}

// SessionThreadID returns the active thread ID, or "" when no live session
// exists. It never creates a thread.
func (w *Wrapper) SessionThreadID(ctx context.Context, userID uuid.UUID) (string, error) {
	return w.sessions.GetThreadID(ctx, userID, time.Now().UTC())
}

// Chat sends a message on the user's session thread. Memory defaults to
// Readonly; Remember switches it to Auto so the assistant may persist facts.
func (w *Wrapper) Chat(ctx context.Context, userID uuid.UUID, text string, opts ChatOptions) (*MessageResponse, error) {
	threadID, err := w.StartSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	memory := opts.MemoryMode
	if memory == "" {
		memory = MemoryModeReadonly
		if opts.Remember {
			memory = MemoryModeAuto
		}
	}

	resp, err := w.client.AddMessage(ctx, threadID, &AddMessageRequest{
		Content:     text,
		Memory:      memory,
		LLMProvider: opts.LLMProvider,
		ModelName:   opts.ModelName,
		Tools:       opts.Tools,
	})
	if err != nil {
		return nil, err
	}

	// Activity extends the session.
	if err := w.sessions.TouchThread(ctx, userID, time.Now().UTC().Add(w.ttl)); err != nil {
		return resp, err
	}
	return resp, nil
}

// SubmitToolOutputs relays tool results on the user's session thread.
func (w *Wrapper) SubmitToolOutputs(ctx context.Context, userID uuid.UUID, runID string, outputs []ToolOutput) (*MessageResponse, error) {
	threadID, err := w.StartSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	return w.client.SubmitToolOutputs(ctx, threadID, runID, outputs)
}

// Remember stores a long-term fact on the user's assistant.
func (w *Wrapper) Remember(ctx context.Context, userID uuid.UUID, fact string, metadata map[string]any) error {
	assistantID, err := w.EnsureAssistant(ctx, userID)
	if err != nil {
		return err
	}
	return w.client.AddMemory(ctx, assistantID, fact, metadata)
}

// UploadSessionDoc uploads a temporary document to the session thread.
func (w *Wrapper) UploadSessionDoc(ctx context.Context, userID uuid.UUID, filename, contentType string, data io.Reader) (*Document, error) {
	threadID, err := w.StartSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	return w.client.UploadThreadDocument(ctx, threadID, filename, contentType, data)
}

// UploadPermanentDoc uploads a permanent document to the user's assistant.
func (w *Wrapper) UploadPermanentDoc(ctx context.Context, userID uuid.UUID, filename, contentType string, data io.Reader) (*Document, error) {
	assistantID, err := w.EnsureAssistant(ctx, userID)
	if err != nil {
		return nil, err
	}
	return w.client.UploadAssistantDocument(ctx, assistantID, filename, contentType, data)
}

// SessionDocuments lists the documents on the active session thread. A nil
// slice means there is no live session.
func (w *Wrapper) SessionDocuments(ctx context.Context, userID uuid.UUID) ([]Document, error) {
	threadID, err := w.SessionThreadID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if threadID == "" {
		return nil, nil
	}
	return w.client.ListThreadDocuments(ctx, threadID)
}

// History returns the messages on the active session thread.
func (w *Wrapper) History(ctx context.Context, userID uuid.UUID) ([]ThreadMessage, error) {
	threadID, err := w.SessionThreadID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if threadID == "" {
		return []ThreadMessage{}, nil
	}
	thread, err := w.client.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread.Messages == nil {
		return []ThreadMessage{}, nil
	}
	return thread.Messages, nil
}

// EndSession deletes the active thread and clears the stored session row.
func (w *Wrapper) EndSession(ctx context.Context, userID uuid.UUID) error {
	threadID, err := w.SessionThreadID(ctx, userID)
	if err != nil {
		return err
	}
	if threadID == "" {
		return nil
	}
	if err := w.client.DeleteThread(ctx, threadID); err != nil {
		return err
	}
	return w.sessions.DeleteThread(ctx, userID)
}
