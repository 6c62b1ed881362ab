// Package wizard drives the three-section pass application form. Every
// forward step is gated by the validation engine and re-checks the current
// section, so fields that were valid earlier are never trusted.
package wizard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atinyakov/DigitalPass/internal/models"
	"github.com/atinyakov/DigitalPass/internal/validation"
)

// State is a wizard step.
type State int

// The first three states edit the section of the same number.
const (
	StatePersonal  State = State(models.SectionPersonal)
	StateEducation State = State(models.SectionEducation)
	StateTravel    State = State(models.SectionTravel)
	// StateReview shows the complete draft for confirmation.
	StateReview State = 4
	// StateCommitted is terminal; the draft was stored as an application.
	StateCommitted State = 5
)

// String returns the lower-case step name.
func (s State) String() string {
	switch s {
	case StatePersonal:
		return "personal"
	case StateEducation:
		return "education"
	case StateTravel:
		return "travel"
	case StateReview:
		return "review"
	case StateCommitted:
		return "committed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for st := StatePersonal; st <= StateCommitted; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown wizard state %q", b)
}

var (
	// ErrNotReviewed is returned by Confirm outside the review step.
	ErrNotReviewed = fmt.Errorf("%w: application has not been reviewed", models.ErrStateViolation)
	// ErrSectionLocked is returned when a section ahead of the current step is edited.
	ErrSectionLocked = fmt.Errorf("%w: section is not open for editing", models.ErrStateViolation)
	// ErrCommitted is returned by any transition after the draft was committed.
	ErrCommitted = fmt.Errorf("%w: application already committed", models.ErrStateViolation)
)

// Committer persists a committed draft as a pending application.
type Committer interface {
	CreateApplication(ctx context.Context, app models.PassApplication) error
}

// Snapshot is the serializable state of a wizard, kept in the session between requests.
type Snapshot struct {
	State State        `json:"state"`
	Draft models.Draft `json:"draft"`
}

// Wizard is a single user's draft and current step. It is not safe for
// concurrent use; the session serializes access.
type Wizard struct {
	state State
	draft models.Draft
}

// New starts a wizard at the personal section.
func New(userID string) *Wizard {
	return &Wizard{state: StatePersonal, draft: models.Draft{UserID: userID}}
}

// Resume rebuilds a wizard from a snapshot. Unknown states restart at the first section.
func Resume(s Snapshot) *Wizard {
	w := &Wizard{state: s.State, draft: s.Draft}
	if w.state < StatePersonal || w.state > StateCommitted {
		w.state = StatePersonal
	}
	return w
}

// Snapshot captures the current step and draft.
func (w *Wizard) Snapshot() Snapshot {
	return Snapshot{State: w.state, Draft: w.draft}
}

// State returns the current step.
func (w *Wizard) State() State { return w.state }

// Draft returns the fields entered so far.
func (w *Wizard) Draft() models.Draft { return w.draft }

func (w *Wizard) editable(id models.SectionID) error {
	switch {
	case w.state == StateCommitted:
		return ErrCommitted
	case w.state > StateTravel || State(id) > w.state:
		return ErrSectionLocked
	}
	return nil
}

// SetPersonal replaces the personal section without validating it.
func (w *Wizard) SetPersonal(p models.PersonalDetails) error {
	if err := w.editable(models.SectionPersonal); err != nil {
		return err
	}
	w.draft.Personal = p
	return nil
}

// SetEducation replaces the education section without validating it.
func (w *Wizard) SetEducation(e models.EducationDetails) error {
	if err := w.editable(models.SectionEducation); err != nil {
		return err
	}
	w.draft.Education = e
	return nil
}

// SetTravel replaces the travel section without validating it.
func (w *Wizard) SetTravel(t models.TravelDetails) error {
	if err := w.editable(models.SectionTravel); err != nil {
		return err
	}
	w.draft.Travel = t
	return nil
}

// Next validates the current section and advances when it passes. On failure
// the state is unchanged and the field errors are returned. Outside the
// section steps Next is a no-op.
func (w *Wizard) Next() (State, validation.Errors) {
	if w.state < StatePersonal || w.state > StateTravel {
		return w.state, nil
	}
	if errs := validation.ValidateSection(models.SectionID(w.state), w.draft); !errs.OK() {
		return w.state, errs
	}
	w.state++
	return w.state, nil
}

// Back returns to the previous section, keeping every entered field. From the
// review step it reopens the travel section.
func (w *Wizard) Back() (State, error) {
	switch {
	case w.state == StateCommitted:
		return w.state, ErrCommitted
	case w.state > StatePersonal:
		w.state--
	}
	return w.state, nil
}

// Confirm commits the reviewed draft as a new pending application stamped
// with now. The draft is cleared only after the committer accepted it.
func (w *Wizard) Confirm(ctx context.Context, c Committer, now time.Time) (models.PassApplication, error) {
	switch w.state {
	case StateCommitted:
		return models.PassApplication{}, ErrCommitted
	case StateReview:
	default:
		return models.PassApplication{}, ErrNotReviewed
	}
	if errs := validation.ValidateDraft(w.draft); !errs.OK() {
		return models.PassApplication{}, errs
	}

	id, err := uuid.NewV7()
	if err != nil {
		return models.PassApplication{}, fmt.Errorf("application id: %w", err)
	}
	app := models.PassApplication{
		Draft:         w.draft,
		ApplicationID: id.String(),
		Status:        models.StatusPending,
		AppliedAt:     now,
	}
	if err := c.CreateApplication(ctx, app); err != nil {
		return models.PassApplication{}, err
	}

	w.state = StateCommitted
	w.draft = models.Draft{UserID: w.draft.UserID}
	return app, nil
}
