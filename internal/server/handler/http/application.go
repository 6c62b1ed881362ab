package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/DigitalPass/internal/card"
	"github.com/atinyakov/DigitalPass/internal/models"
	"github.com/atinyakov/DigitalPass/internal/photo"
	"github.com/atinyakov/DigitalPass/internal/session"
	"github.com/atinyakov/DigitalPass/internal/wizard"
)

// ApplicationService defines the wizard and record operations required by
// ApplicationHandler.
type ApplicationService interface {
	Wizard(ctx context.Context, sess *session.Session) (wizard.Snapshot, error)
	UpdatePersonal(ctx context.Context, sess *session.Session, p models.PersonalDetails) (wizard.Snapshot, error)
	UpdateEducation(ctx context.Context, sess *session.Session, e models.EducationDetails) (wizard.Snapshot, error)
	UpdateTravel(ctx context.Context, sess *session.Session, t models.TravelDetails) (wizard.Snapshot, error)
	SetPhoto(ctx context.Context, sess *session.Session, dataURL string) (wizard.Snapshot, error)
	Next(ctx context.Context, sess *session.Session) (wizard.Snapshot, error)
	Back(ctx context.Context, sess *session.Session) (wizard.Snapshot, error)
	Confirm(ctx context.Context, sess *session.Session) (models.PassApplication, error)
	Abandon(ctx context.Context, sess *session.Session) error
	List(ctx context.Context, sess *session.Session) ([]models.PassApplication, error)
	Pass(ctx context.Context, sess *session.Session) (models.PassRecord, error)
}

// ApplicationHandler serves the application wizard and the issued pass.
type ApplicationHandler struct {
	ApplicationService ApplicationService
	Log                *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// uploadLimit bounds the multipart body of a photo upload.
const uploadLimit = photo.MaxBytes + 1<<20

// Locations handles GET /api/locations.
func (h *ApplicationHandler) Locations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"locations": models.Locations,
		"durations": models.Durations,
	})
}

// Get handles GET /api/application, starting a wizard if needed.
func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.snapshot(w, r, h.ApplicationService.Wizard)
}

// UpdatePersonal handles PUT /api/application/personal.
func (h *ApplicationHandler) UpdatePersonal(w http.ResponseWriter, r *http.Request) {
	var p models.PersonalDetails
	if err := decode(r, &p); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request")
		return
	}
	h.snapshot(w, r, func(ctx context.Context, s *session.Session) (wizard.Snapshot, error) {
		return h.ApplicationService.UpdatePersonal(ctx, s, p)
	})
}

// UpdateEducation handles PUT /api/application/education.
func (h *ApplicationHandler) UpdateEducation(w http.ResponseWriter, r *http.Request) {
	var e models.EducationDetails
	if err := decode(r, &e); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request")
		return
	}
	h.snapshot(w, r, func(ctx context.Context, s *session.Session) (wizard.Snapshot, error) {
		return h.ApplicationService.UpdateEducation(ctx, s, e)
	})
}

// UpdateTravel handles PUT /api/application/travel.
func (h *ApplicationHandler) UpdateTravel(w http.ResponseWriter, r *http.Request) {
	var t models.TravelDetails
	if err := decode(r, &t); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request")
		return
	}
	h.snapshot(w, r, func(ctx context.Context, s *session.Session) (wizard.Snapshot, error) {
		return h.ApplicationService.UpdateTravel(ctx, s, t)
	})
}

// UploadPhoto handles POST /api/application/photo with a multipart "photo" file.
func (h *ApplicationHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, uploadLimit)
	file, _, err := r.FormFile("photo")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, h.Log, photo.ErrTooLarge)
			return
		}
		writeMessage(w, http.StatusBadRequest, "photo file is required")
		return
	}
	defer file.Close()

	dataURL, err := photo.Intake(file)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.snapshot(w, r, func(ctx context.Context, s *session.Session) (wizard.Snapshot, error) {
		return h.ApplicationService.SetPhoto(ctx, s, dataURL)
	})
}

// Next handles POST /api/application/next.
func (h *ApplicationHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.snapshot(w, r, h.ApplicationService.Next)
}

// Back handles POST /api/application/back.
func (h *ApplicationHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.snapshot(w, r, h.ApplicationService.Back)
}

// Confirm handles POST /api/application/confirm and replies 201 with the
// pending application.
func (h *ApplicationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	app, err := h.ApplicationService.Confirm(r.Context(), sess)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

// Abandon handles DELETE /api/application.
func (h *ApplicationHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	if err := h.ApplicationService.Abandon(r.Context(), sess); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/applications.
func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	apps, err := h.ApplicationService.List(r.Context(), sess)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

// Pass handles GET /api/pass.
func (h *ApplicationHandler) Pass(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	rec, err := h.ApplicationService.Pass(r.Context(), sess)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Card handles GET /api/pass/card, a printable download of the pass.
func (h *ApplicationHandler) Card(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	rec, err := h.ApplicationService.Pass(r.Context(), sess)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", card.FileName(rec.PassNumber)))
	_, _ = w.Write([]byte(card.Render(rec, now()) + "\n"))
}

func (h *ApplicationHandler) snapshot(w http.ResponseWriter, r *http.Request, op func(context.Context, *session.Session) (wizard.Snapshot, error)) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	snap, err := op(r.Context(), sess)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
