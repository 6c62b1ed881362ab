package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/DigitalPass/internal/models"
	"github.com/atinyakov/DigitalPass/internal/service"
	"github.com/atinyakov/DigitalPass/internal/session"
	"github.com/atinyakov/DigitalPass/internal/validation"
)

// fakeAuthService implements AuthService for testing.
type fakeAuthService struct {
	registerErr error
	loginErr    error
	logoutErr   error
	loggedOut   string
}

func (f *fakeAuthService) Register(_ context.Context, req service.RegisterRequest) (models.User, error) {
	if f.registerErr != nil {
		return models.User{}, f.registerErr
	}
	return models.User{ID: "u1", FullName: req.FullName, Email: req.Email, Mobile: req.Mobile}, nil
}

func (f *fakeAuthService) Login(_ context.Context, email, _ string) (service.LoginResult, error) {
	if f.loginErr != nil {
		return service.LoginResult{}, f.loginErr
	}
	return service.LoginResult{
		Token:     "token-1",
		ExpiresAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		User:      models.User{ID: "u1", Email: email},
	}, nil
}

func (f *fakeAuthService) Logout(_ context.Context, sess *session.Session) error {
	f.loggedOut = sess.ID
	return f.logoutErr
}

func TestAuthHandler_Register(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		service        *fakeAuthService
		expectedCode   int
		expectedSubstr string
	}{
		{
			name:           "invalid JSON",
			body:           `not a json`,
			service:        &fakeAuthService{},
			expectedCode:   http.StatusBadRequest,
			expectedSubstr: "invalid request",
		},
		{
			name:           "unknown field",
			body:           `{"login":"alice"}`,
			service:        &fakeAuthService{},
			expectedCode:   http.StatusBadRequest,
			expectedSubstr: "invalid request",
		},
		{
			name:           "field errors",
			body:           `{"fullName":"","email":"a@b.co","mobile":"9876543210","password":"secret1"}`,
			service:        &fakeAuthService{registerErr: validation.Errors{"fullName": "Full name is required"}},
			expectedCode:   http.StatusUnprocessableEntity,
			expectedSubstr: "Full name is required",
		},
		{
			name:           "email taken",
			body:           `{"fullName":"Ravi","email":"a@b.co","mobile":"9876543210","password":"secret1"}`,
			service:        &fakeAuthService{registerErr: models.ErrEmailTaken},
			expectedCode:   http.StatusConflict,
			expectedSubstr: "email already registered",
		},
		{
			name:           "repository failure",
			body:           `{"fullName":"Ravi","email":"a@b.co","mobile":"9876543210","password":"secret1"}`,
			service:        &fakeAuthService{registerErr: errors.New("db error")},
			expectedCode:   http.StatusInternalServerError,
			expectedSubstr: "internal error",
		},
		{
			name:           "success",
			body:           `{"fullName":"Ravi","email":"a@b.co","mobile":"9876543210","password":"secret1"}`,
			service:        &fakeAuthService{},
			expectedCode:   http.StatusCreated,
			expectedSubstr: `"fullName":"Ravi"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString(tt.body))
			h := &AuthHandler{AuthService: tt.service, Log: zap.NewNop()}

			h.Register(rec, req)

			if rec.Code != tt.expectedCode {
				t.Fatalf("expected status %d, got %d", tt.expectedCode, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.expectedSubstr) {
				t.Errorf("expected body to contain %q, got %q", tt.expectedSubstr, rec.Body.String())
			}
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		service      *fakeAuthService
		expectedCode int
		expectedErr  string
	}{
		{
			name:         "invalid JSON",
			body:         `{`,
			service:      &fakeAuthService{},
			expectedCode: http.StatusBadRequest,
			expectedErr:  "invalid request",
		},
		{
			name:         "wrong password",
			body:         `{"email":"a@b.co","password":"nope"}`,
			service:      &fakeAuthService{loginErr: models.ErrInvalidCredentials},
			expectedCode: http.StatusUnauthorized,
			expectedErr:  "Invalid email or password",
		},
		{
			name:         "session store down",
			body:         `{"email":"a@b.co","password":"secret1"}`,
			service:      &fakeAuthService{loginErr: errors.New("redis down")},
			expectedCode: http.StatusInternalServerError,
			expectedErr:  "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(tt.body))
			h := &AuthHandler{AuthService: tt.service, Log: zap.NewNop()}

			h.Login(rec, req)

			if rec.Code != tt.expectedCode {
				t.Fatalf("expected status %d, got %d", tt.expectedCode, rec.Code)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Error != tt.expectedErr {
				t.Errorf("expected error %q, got %q", tt.expectedErr, resp.Error)
			}
		})
	}
}

func TestAuthHandler_LoginSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"a@b.co","password":"secret1"}`))
	h := &AuthHandler{AuthService: &fakeAuthService{}, Log: zap.NewNop()}

	h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res service.LoginResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Token != "token-1" || res.User.Email != "a@b.co" {
		t.Errorf("unexpected login result: %+v", res)
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h := &AuthHandler{AuthService: &fakeAuthService{}, Log: zap.NewNop()}

		h.Logout(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("ends session", func(t *testing.T) {
		svc := &fakeAuthService{}
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/logout", nil)
		req = req.WithContext(session.WithSession(req.Context(), &session.Session{ID: "s1"}))
		h := &AuthHandler{AuthService: svc, Log: zap.NewNop()}

		h.Logout(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if svc.loggedOut != "s1" {
			t.Errorf("expected session s1 to be ended, got %q", svc.loggedOut)
		}
	})
}
