package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tidyplan/tidyplan-api/internal/services/backboard"
)

type fakeChatSession struct {
	history []backboard.ThreadMessage
	docs    []backboard.Document
	err     error

	resetCalls int
	uploaded   struct {
		filename    string
		contentType string
		data        []byte
	}
}

func (f *fakeChatSession) History(context.Context, uuid.UUID) ([]backboard.ThreadMessage, error) {
	return f.history, f.err
}

func (f *fakeChatSession) EndSession(context.Context, uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.resetCalls++
	return nil
}

func (f *fakeChatSession) SessionDocuments(context.Context, uuid.UUID) ([]backboard.Document, error) {
	return f.docs, f.err
}

func (f *fakeChatSession) UploadSessionDoc(_ context.Context, _ uuid.UUID, filename, contentType string, data io.Reader) (*backboard.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.uploaded.filename = filename
	f.uploaded.contentType = contentType
	f.uploaded.data, _ = io.ReadAll(data)
	return &backboard.Document{DocumentID: "doc-1", Filename: filename, Status: "pending"}, nil
}

func chatRouter(session ChatSession) func(*mux.Router) {
	handler := NewChatHandler(session, nil)
	return handler.RegisterRoutes
}

func multipartUpload(t *testing.T, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed to write multipart content: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	return &buf, writer.FormDataContentType()
}

func TestGetHistory(t *testing.T) {
	t.Parallel()

	session := &fakeChatSession{history: []backboard.ThreadMessage{
		{Role: "user", Content: "add a task"},
		{Role: "assistant", Content: "Done."},
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/chat/history", nil)
	rec := serve("/api/chat", chatRouter(session), testUser(), req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var data struct {
		Messages []backboard.ThreadMessage `json:"messages"`
	}
	env := decodeEnvelope(t, rec)
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("failed to decode history: %v", err)
	}
	if len(data.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(data.Messages))
	}
}

func TestGetHistoryUpstreamError(t *testing.T) {
	t.Parallel()

	session := &fakeChatSession{err: fmt.Errorf("backboard down")}
	req := httptest.NewRequest(http.MethodGet, "/api/chat/history", nil)
	rec := serve("/api/chat", chatRouter(session), testUser(), req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", rec.Code)
	}
}

func TestResetChat(t *testing.T) {
	t.Parallel()

	session := &fakeChatSession{}
	req := httptest.NewRequest(http.MethodPost, "/api/chat/reset", nil)
	rec := serve("/api/chat", chatRouter(session), testUser(), req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if session.resetCalls != 1 {
		t.Errorf("expected 1 reset call, got %d", session.resetCalls)
	}
}

func TestListDocumentsIndexingFlag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		docs     []backboard.Document
		indexing bool
	}{
		{"no documents", nil, false},
		{"all indexed", []backboard.Document{{DocumentID: "a", Status: "indexed"}}, false},
		{"one pending", []backboard.Document{
			{DocumentID: "a", Status: "indexed"},
			{DocumentID: "b", Status: "processing"},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			session := &fakeChatSession{docs: tt.docs}
			req := httptest.NewRequest(http.MethodGet, "/api/chat/documents", nil)
			rec := serve("/api/chat", chatRouter(session), testUser(), req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rec.Code)
			}

			var data struct {
				Documents []backboard.Document `json:"documents"`
				Indexing  bool                 `json:"indexing"`
			}
			env := decodeEnvelope(t, rec)
			if err := json.Unmarshal(env.Data, &data); err != nil {
				t.Fatalf("failed to decode documents: %v", err)
			}
			if data.Indexing != tt.indexing {
				t.Errorf("expected indexing=%v, got %v", tt.indexing, data.Indexing)
			}
			if data.Documents == nil {
				t.Error("expected documents array, got null")
			}
		})
	}
}

func TestUploadDocument(t *testing.T) {
	t.Parallel()

	session := &fakeChatSession{}
	body, contentType := multipartUpload(t, "syllabus.pdf", "application/pdf", []byte("%PDF-1.4"))

	req := httptest.NewRequest(http.MethodPost, "/api/chat/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := serve("/api/chat", chatRouter(session), testUser(), req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if session.uploaded.filename != "syllabus.pdf" {
		t.Errorf("expected filename syllabus.pdf, got %q", session.uploaded.filename)
	}
	if session.uploaded.contentType != "application/pdf" {
		t.Errorf("expected content type application/pdf, got %q", session.uploaded.contentType)
	}
}

func TestUploadDocumentTextConvertedToMarkdown(t *testing.T) {
	t.Parallel()

	session := &fakeChatSession{}
	body, contentType := multipartUpload(t, "notes.txt", "text/plain; charset=utf-8", []byte("remember this"))

	req := httptest.NewRequest(http.MethodPost, "/api/chat/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := serve("/api/chat", chatRouter(session), testUser(), req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if session.uploaded.filename != "notes.md" {
		t.Errorf("expected filename notes.md, got %q", session.uploaded.filename)
	}
	if session.uploaded.contentType != "text/markdown" {
		t.Errorf("expected content type text/markdown, got %q", session.uploaded.contentType)
	}
	if string(session.uploaded.data) != "remember this" {
		t.Errorf("expected content forwarded unchanged, got %q", session.uploaded.data)
	}
}

func TestUploadDocumentUnsupportedType(t *testing.T) {
	t.Parallel()

	session := &fakeChatSession{}
	body, contentType := multipartUpload(t, "photo.png", "image/png", []byte{0x89, 0x50})

	req := httptest.NewRequest(http.MethodPost, "/api/chat/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := serve("/api/chat", chatRouter(session), testUser(), req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
	if session.uploaded.filename != "" {
		t.Error("expected no upload to reach the session")
	}
}

func TestUploadDocumentMissingFile(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	_ = writer.WriteField("note", "no file here")
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/chat/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := serve("/api/chat", chatRouter(&fakeChatSession{}), testUser(), req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestUploadDocumentUpstreamError(t *testing.T) {
	t.Parallel()

	session := &fakeChatSession{err: fmt.Errorf("backboard down")}
	body, contentType := multipartUpload(t, "syllabus.pdf", "application/pdf", []byte("%PDF-1.4"))

	req := httptest.NewRequest(http.MethodPost, "/api/chat/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := serve("/api/chat", chatRouter(session), testUser(), req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", rec.Code)
	}
}

func TestChatEndpointsUnauthenticated(t *testing.T) {
	t.Parallel()

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/chat/history"},
		{http.MethodPost, "/api/chat/reset"},
		{http.MethodGet, "/api/chat/documents"},
	}

	for _, p := range paths {
		req := httptest.NewRequest(p.method, p.path, nil)
		rec := serve("/api/chat", chatRouter(&fakeChatSession{}), nil, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected status 401, got %d", p.method, p.path, rec.Code)
		}
	}
}
