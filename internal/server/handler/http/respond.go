package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/DigitalPass/internal/models"
	"github.com/atinyakov/DigitalPass/internal/payment"
	"github.com/atinyakov/DigitalPass/internal/photo"
	"github.com/atinyakov/DigitalPass/internal/service"
	"github.com/atinyakov/DigitalPass/internal/session"
	"github.com/atinyakov/DigitalPass/internal/validation"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Errors map[string]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeError maps domain errors to HTTP replies. Field errors and user
// mistakes are not logged above debug; state violations are logged as errors.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		log.Debug("validation failed", zap.Int("fields", len(verrs)))
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "validation failed", Errors: verrs})
	case errors.Is(err, service.ErrPaymentFailed):
		if errors.Is(err, models.ErrStateViolation) {
			log.Error("payment aborted", zap.Error(err))
		}
		writeMessage(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, models.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, models.ErrEmailTaken):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, payment.ErrPinIncomplete):
		writeMessage(w, http.StatusUnprocessableEntity, fmt.Sprintf("Please enter a %d-digit PIN", payment.PinLength))
	case errors.Is(err, payment.ErrInvalidDigit):
		writeMessage(w, http.StatusUnprocessableEntity, "PIN accepts digits only")
	case errors.Is(err, photo.ErrTooLarge), errors.Is(err, photo.ErrNotImage), errors.Is(err, photo.ErrMalformed):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "validation failed", Errors: map[string]string{"photo": err.Error()}})
	case errors.Is(err, payment.ErrProcessing), errors.Is(err, payment.ErrInFlight), errors.Is(err, payment.ErrSettled):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrStateViolation):
		log.Error("state violation", zap.Error(err))
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrNotFound), errors.Is(err, session.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	default:
		log.Error("request failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads a JSON body into v.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// currentSession returns the session stored by the auth middleware.
func currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
	}
	return s, ok
}
