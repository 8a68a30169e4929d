package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tidyplan/tidyplan-api/internal/models"
	"github.com/tidyplan/tidyplan-api/internal/request"
)

type stubVerifier struct {
	claims *models.IDTokenClaims
	err    error
}

func (s *stubVerifier) Verify(_ context.Context, _ string) (*models.IDTokenClaims, error) {
	return s.claims, s.err
}

type stubUserRepo struct {
	users map[string]*models.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*models.User)}
}

func (s *stubUserRepo) GetByProviderID(_ context.Context, providerID string) (*models.User, error) {
	if u, ok := s.users[providerID]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user not found")
}

func (s *stubUserRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user not found")
}

func (s *stubUserRepo) GetOrCreate(_ context.Context, claims *models.IDTokenClaims) (*models.User, error) {
	if u, ok := s.users[claims.Sub]; ok {
		return u, nil
	}
	u := &models.User{
		ID:         uuid.New(),
		ProviderID: claims.Sub,
		Email:      claims.Email,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	s.users[claims.Sub] = u
	return u, nil
}

func TestAuth_MissingHeader(t *testing.T) {
	t.Parallel()

	mw := Auth(newStubUserRepo(), &stubVerifier{}, false, zap.NewNop())
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest("GET", "/api/tasks", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestAuth_InvalidHeaderFormat(t *testing.T) {
	t.Parallel()

	mw := Auth(newStubUserRepo(), &stubVerifier{}, false, zap.NewNop())
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest("GET", "/api/tasks", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	t.Parallel()

	verifier := &stubVerifier{err: fmt.Errorf("token expired")}
	mw := Auth(newStubUserRepo(), verifier, false, zap.NewNop())
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest("GET", "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestAuth_ValidToken(t *testing.T) {
	t.Parallel()

	verifier := &stubVerifier{claims: &models.IDTokenClaims{
		Sub:   "firebase-uid-1",
		Email: "alice@example.com",
	}}
	repo := newStubUserRepo()
	mw := Auth(repo, verifier, false, zap.NewNop())

	var gotUser *models.User
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = request.UserFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if gotUser == nil {
		t.Fatal("Expected user in context")
	}
	if gotUser.ProviderID != "firebase-uid-1" {
		t.Errorf("Expected provider ID 'firebase-uid-1', got '%s'", gotUser.ProviderID)
	}
}

func TestAuth_DevHeaderFallback(t *testing.T) {
	t.Parallel()

	repo := newStubUserRepo()
	mw := Auth(repo, &stubVerifier{err: fmt.Errorf("no token")}, true, zap.NewNop())

	var gotUser *models.User
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = request.UserFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/tasks", nil)
	req.Header.Set("X-User-ID", "dev-user")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if gotUser == nil || gotUser.ProviderID != "dev-user" {
		t.Errorf("Expected dev user in context, got %+v", gotUser)
	}
}

func TestAuth_DevHeaderDisabled(t *testing.T) {
	t.Parallel()

	mw := Auth(newStubUserRepo(), &stubVerifier{}, false, zap.NewNop())
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest("GET", "/api/tasks", nil)
	req.Header.Set("X-User-ID", "dev-user")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}
