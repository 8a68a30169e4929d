package backboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the hosted Backboard API endpoint.
	DefaultBaseURL = "https://app.backboard.io/api"
	// DefaultTimeout bounds every Backboard call. Chat runs can be slow.
	DefaultTimeout = 120 * time.Second

	maxErrorBodyLength = 400
)

// Client is a REST client for the Backboard API. Authentication is an
// X-API-Key header on every request.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Backboard API client.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient overrides the underlying HTTP client. Used by tests.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

// CreateAssistant creates a new assistant.
func (c *Client) CreateAssistant(ctx context.Context, req *CreateAssistantRequest) (*Assistant, error) {
	var assistant Assistant
	if err := c.doJSON(ctx, http.MethodPost, "/assistants", req, &assistant); err != nil {
		return nil, fmt.Errorf("create assistant: %w", err)
	}
	return &assistant, nil
}

// UpdateAssistant updates an existing assistant (best effort).
func (c *Client) UpdateAssistant(ctx context.Context, assistantID string, req *CreateAssistantRequest) (*Assistant, error) {
	var assistant Assistant
	if err := c.doJSON(ctx, http.MethodPut, "/assistants/"+assistantID, req, &assistant); err != nil {
		return nil, fmt.Errorf("update assistant: %w", err)
	}
	return &assistant, nil
}

// CreateThread creates a new thread under an assistant.
func (c *Client) CreateThread(ctx context.Context, assistantID string) (*Thread, error) {
	var thread Thread
	if err := c.doJSON(ctx, http.MethodPost, "/assistants/"+assistantID+"/threads", map[string]any{}, &thread); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return &thread, nil
}

// GetThread retrieves a thread including its messages.
func (c *Client) GetThread(ctx context.Context, threadID string) (*Thread, error) {
	var thread Thread
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID, nil, &thread); err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return &thread, nil
}

// DeleteThread deletes a thread.
func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/threads/"+threadID, nil, nil); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return nil
}

// AddMessage posts a chat message to a thread. The API expects
// multipart/form-data; structured fields are sent as JSON strings.
func (c *Client) AddMessage(ctx context.Context, threadID string, req *AddMessageRequest) (*MessageResponse, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	fields := map[string]string{
		"content": req.Content,
		"stream":  strconv.FormatBool(req.Stream),
	}
	if req.Memory != "" {
		fields["memory"] = string(req.Memory)
	}
	if req.LLMProvider != "" {
		fields["llm_provider"] = req.LLMProvider
	}
	if req.ModelName != "" {
		fields["model_name"] = req.ModelName
	}
	if len(req.Tools) > 0 {
		tools, err := json.Marshal(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("marshal tools: %w", err)
		}
		fields["tools"] = string(tools)
	}
	if len(req.Metadata) > 0 {
		metadata, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		fields["metadata"] = string(metadata)
	}

	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", key, err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	var msg MessageResponse
	if err := c.doForm(ctx, "/threads/"+threadID+"/messages", form.FormDataContentType(), body, &msg); err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}
	return &msg, nil
}

// ListThreadDocuments lists documents attached to a thread.
func (c *Client) ListThreadDocuments(ctx context.Context, threadID string) ([]Document, error) {
	var docs []Document
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/documents", nil, &docs); err != nil {
		return nil, fmt.Errorf("list thread documents: %w", err)
	}
	return docs, nil
}

// GetDocumentStatus fetches the indexing status of one document.
func (c *Client) GetDocumentStatus(ctx context.Context, documentID string) (*Document, error) {
	var doc Document
	if err := c.doJSON(ctx, http.MethodGet, "/documents/"+documentID+"/status", nil, &doc); err != nil {
		return nil, fmt.Errorf("get document status: %w", err)
	}
	return &doc, nil
}

// AddMemory stores a long-term fact on an assistant.
func (c *Client) AddMemory(ctx context.Context, assistantID, content string, metadata map[string]any) error {
	payload := map[string]any{"content": content}
	if metadata != nil {
		payload["metadata"] = metadata
	}
	if err := c.doJSON(ctx, http.MethodPost, "/assistants/"+assistantID+"/memories", payload, nil); err != nil {
		return fmt.Errorf("add memory: %w", err)
	}
	return nil
}

// UploadAssistantDocument uploads a permanent document to an assistant.
func (c *Client) UploadAssistantDocument(ctx context.Context, assistantID, filename, contentType string, data io.Reader) (*Document, error) {
	return c.uploadDocument(ctx, "/assistants/"+assistantID+"/documents", filename, contentType, data)
}

// UploadThreadDocument uploads a temporary document to a thread.
func (c *Client) UploadThreadDocument(ctx context.Context, threadID, filename, contentType string, data io.Reader) (*Document, error) {
	return c.uploadDocument(ctx, "/threads/"+threadID+"/documents", filename, contentType, data)
}

// SubmitToolOutputs posts tool call results back to a waiting run.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*MessageResponse, error) {
	path := "/threads/" + threadID + "/runs/" + runID + "/submit-tool-outputs?stream=false"
	payload := map[string]any{"tool_outputs": outputs}
	var msg MessageResponse
	if err := c.doJSON(ctx, http.MethodPost, path, payload, &msg); err != nil {
		return nil, fmt.Errorf("submit tool outputs: %w", err)
	}
	return &msg, nil
}

func (c *Client) uploadDocument(ctx context.Context, path, filename, contentType string, data io.Reader) (*Document, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	// The API expects the field name "file" (singular).
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename)}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header["Content-Type"] = []string{contentType}

	part, err := form.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return nil, fmt.Errorf("copy file data: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	var doc Document
	if err := c.doForm(ctx, path, form.FormDataContentType(), body, &doc); err != nil {
		return nil, fmt.Errorf("upload document: %w", err)
	}
	return &doc, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, out)
}

func (c *Client) doForm(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentType)

	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backboard API unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		snippet := string(data)
		if len(snippet) > maxErrorBodyLength {
			snippet = snippet[:maxErrorBodyLength]
		}
		return fmt.Errorf("backboard API returned %d: %s", resp.StatusCode, snippet)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
