package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atinyakov/DigitalPass/internal/models"
	"github.com/atinyakov/DigitalPass/internal/payment"
	"github.com/atinyakov/DigitalPass/internal/photo"
	"github.com/atinyakov/DigitalPass/internal/session"
	"github.com/atinyakov/DigitalPass/internal/wizard"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// fakeApplicationService records the last photo and returns canned values.
type fakeApplicationService struct {
	photo   string
	pass    models.PassRecord
	passErr error
	err     error
}

func (f *fakeApplicationService) snap() (wizard.Snapshot, error) {
	return wizard.Snapshot{State: wizard.StatePersonal}, f.err
}

func (f *fakeApplicationService) Wizard(context.Context, *session.Session) (wizard.Snapshot, error) {
	return f.snap()
}
func (f *fakeApplicationService) UpdatePersonal(context.Context, *session.Session, models.PersonalDetails) (wizard.Snapshot, error) {
	return f.snap()
}
func (f *fakeApplicationService) UpdateEducation(context.Context, *session.Session, models.EducationDetails) (wizard.Snapshot, error) {
	return f.snap()
}
func (f *fakeApplicationService) UpdateTravel(context.Context, *session.Session, models.TravelDetails) (wizard.Snapshot, error) {
	return f.snap()
}
func (f *fakeApplicationService) SetPhoto(_ context.Context, _ *session.Session, dataURL string) (wizard.Snapshot, error) {
	f.photo = dataURL
	return f.snap()
}
func (f *fakeApplicationService) Next(context.Context, *session.Session) (wizard.Snapshot, error) {
	return f.snap()
}
func (f *fakeApplicationService) Back(context.Context, *session.Session) (wizard.Snapshot, error) {
	return f.snap()
}
func (f *fakeApplicationService) Confirm(context.Context, *session.Session) (models.PassApplication, error) {
	return models.PassApplication{ApplicationID: "a1", Status: models.StatusPending}, f.err
}
func (f *fakeApplicationService) Abandon(context.Context, *session.Session) error {
	return f.err
}
func (f *fakeApplicationService) List(context.Context, *session.Session) ([]models.PassApplication, error) {
	return []models.PassApplication{}, f.err
}
func (f *fakeApplicationService) Pass(context.Context, *session.Session) (models.PassRecord, error) {
	return f.pass, f.passErr
}

func withSession(r *http.Request) *http.Request {
	return r.WithContext(session.WithSession(r.Context(), &session.Session{ID: "s1", User: models.User{ID: "u1"}}))
}

func multipartPhoto(t *testing.T, field string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, "me.png")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/application/photo", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return withSession(req)
}

func TestApplicationHandler_UploadPhoto(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		content  []byte
		wantCode int
		wantBody string
	}{
		{name: "png", field: "photo", content: pngHeader, wantCode: http.StatusOK, wantBody: `"state":"personal"`},
		{name: "missing field", field: "avatar", content: pngHeader, wantCode: http.StatusBadRequest, wantBody: "photo file is required"},
		{name: "not an image", field: "photo", content: []byte("hello, world"), wantCode: http.StatusUnprocessableEntity, wantBody: "Please upload an image file"},
		{
			name:     "too large",
			field:    "photo",
			content:  append(append([]byte{}, pngHeader...), make([]byte, photo.MaxBytes)...),
			wantCode: http.StatusUnprocessableEntity,
			wantBody: "Photo size should be less than 2MB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeApplicationService{}
			h := &ApplicationHandler{ApplicationService: svc, Log: zap.NewNop()}
			rec := httptest.NewRecorder()

			h.UploadPhoto(rec, multipartPhoto(t, tt.field, tt.content))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			if tt.wantCode == http.StatusOK {
				assert.True(t, strings.HasPrefix(svc.photo, "data:image/png;base64,"))
			} else {
				assert.Empty(t, svc.photo)
			}
		})
	}
}

func TestApplicationHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		call     func(h *ApplicationHandler, w http.ResponseWriter, r *http.Request)
		wantCode int
	}{
		{name: "edit after review", err: wizard.ErrSectionLocked, call: (*ApplicationHandler).Next, wantCode: http.StatusConflict},
		{name: "pending exists", err: models.ErrPendingExists, call: (*ApplicationHandler).Get, wantCode: http.StatusConflict},
		{name: "nothing to abandon", err: models.ErrNotFound, call: (*ApplicationHandler).Abandon, wantCode: http.StatusNotFound},
		{name: "abandon while paying", err: payment.ErrInFlight, call: (*ApplicationHandler).Abandon, wantCode: http.StatusConflict},
		{name: "confirm ok", call: (*ApplicationHandler).Confirm, wantCode: http.StatusCreated},
		{name: "abandon ok", call: (*ApplicationHandler).Abandon, wantCode: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &ApplicationHandler{ApplicationService: &fakeApplicationService{err: tt.err}, Log: zap.NewNop()}
			rec := httptest.NewRecorder()

			tt.call(h, rec, withSession(httptest.NewRequest(http.MethodPost, "/", nil)))

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestApplicationHandler_UpdateRejectsBadJSON(t *testing.T) {
	h := &ApplicationHandler{ApplicationService: &fakeApplicationService{}, Log: zap.NewNop()}
	rec := httptest.NewRecorder()
	req := withSession(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"duration":"soon"}`)))

	h.UpdateTravel(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplicationHandler_Locations(t *testing.T) {
	h := &ApplicationHandler{Log: zap.NewNop()}
	rec := httptest.NewRecorder()

	h.Locations(rec, httptest.NewRequest(http.MethodGet, "/api/locations", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Locations []string `json:"locations"`
		Durations []int    `json:"durations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, models.Locations, resp.Locations)
	assert.Equal(t, []int{1, 3, 6, 12}, resp.Durations)
}

func TestApplicationHandler_Card(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	rec := models.PassRecord{
		PassApplication: models.PassApplication{
			ApplicationID: "a1",
			Status:        models.StatusApproved,
			PassNumber:    "TS12345678",
		},
		ValidFrom: now.AddDate(0, 0, -1),
		ValidTo:   now.AddDate(0, 1, -1),
	}

	t.Run("download", func(t *testing.T) {
		h := &ApplicationHandler{ApplicationService: &fakeApplicationService{pass: rec}, Log: zap.NewNop(), Now: func() time.Time { return now }}
		w := httptest.NewRecorder()

		h.Card(w, withSession(httptest.NewRequest(http.MethodGet, "/api/pass/card", nil)))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, `attachment; filename="DigitalPass_TS12345678.txt"`, w.Header().Get("Content-Disposition"))
		assert.Contains(t, w.Body.String(), "TS12345678")
		assert.Contains(t, w.Body.String(), "ACTIVE PASS")
	})

	t.Run("no pass", func(t *testing.T) {
		h := &ApplicationHandler{ApplicationService: &fakeApplicationService{passErr: models.ErrNotFound}, Log: zap.NewNop()}
		w := httptest.NewRecorder()

		h.Card(w, withSession(httptest.NewRequest(http.MethodGet, "/api/pass/card", nil)))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
