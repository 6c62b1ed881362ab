package storage

import (
	"time"

	"github.com/atinyakov/DigitalPass/internal/models"
)

// State is what the client keeps between runs: the session token of the
// logged in user and the last pass fetched from the server.
type State struct {
	Email     string             `json:"email,omitempty"`
	Token     string             `json:"token,omitempty"`
	ExpiresAt time.Time          `json:"expiresAt,omitempty"`
	Pass      *models.PassRecord `json:"pass,omitempty"`
}

// WizardView mirrors the wizard snapshot returned by the server.
type WizardView struct {
	State string       `json:"state"`
	Draft models.Draft `json:"draft"`
}

// PaymentView mirrors the payment status returned by the server.
type PaymentView struct {
	ApplicationID string             `json:"applicationId"`
	State         string             `json:"state"`
	Digits        int                `json:"digits"`
	Pass          *models.PassRecord `json:"pass,omitempty"`
	Error         string             `json:"error,omitempty"`
}
