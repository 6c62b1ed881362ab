package http

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/DigitalPass/internal/models"
	"github.com/atinyakov/DigitalPass/internal/payment"
	"github.com/atinyakov/DigitalPass/internal/session"
)

// PaymentService defines the payment operations required by PaymentHandler.
type PaymentService interface {
	Status(ctx context.Context, sess *session.Session) (payment.Status, error)
	Start(ctx context.Context, sess *session.Session) (payment.Status, error)
	Press(ctx context.Context, sess *session.Session, digits string) (payment.Status, error)
	Delete(ctx context.Context, sess *session.Session) (payment.Status, error)
	Retry(ctx context.Context, sess *session.Session) (payment.Status, error)
	Submit(ctx context.Context, sess *session.Session) (models.PassRecord, error)
}

// PaymentHandler serves the PIN authorization of the pending application.
type PaymentHandler struct {
	PaymentService PaymentService
	Log            *zap.Logger
}

// PinRequest carries digits pressed on the PIN pad.
type PinRequest struct {
	Digits string `json:"digits"`
}

// Status handles GET /api/payment.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.status(w, r, h.PaymentService.Status)
}

// Start handles POST /api/payment/start.
func (h *PaymentHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.status(w, r, h.PaymentService.Start)
}

// Press handles POST /api/payment/pin.
func (h *PaymentHandler) Press(w http.ResponseWriter, r *http.Request) {
	var req PinRequest
	if err := decode(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request")
		return
	}
	h.status(w, r, func(ctx context.Context, s *session.Session) (payment.Status, error) {
		return h.PaymentService.Press(ctx, s, req.Digits)
	})
}

// Delete handles DELETE /api/payment/pin.
func (h *PaymentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.status(w, r, h.PaymentService.Delete)
}

// Retry handles POST /api/payment/retry.
func (h *PaymentHandler) Retry(w http.ResponseWriter, r *http.Request) {
	h.status(w, r, h.PaymentService.Retry)
}

// Submit handles POST /api/payment/submit. It blocks until settlement ends
// and replies with the issued pass.
func (h *PaymentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	rec, err := h.PaymentService.Submit(r.Context(), sess)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *PaymentHandler) status(w http.ResponseWriter, r *http.Request, op func(context.Context, *session.Session) (payment.Status, error)) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	st, err := op(r.Context(), sess)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
