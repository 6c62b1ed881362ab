package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/DigitalPass/internal/events"
	"github.com/atinyakov/DigitalPass/internal/issuance"
	"github.com/atinyakov/DigitalPass/internal/metrics"
	"github.com/atinyakov/DigitalPass/internal/models"
	"github.com/atinyakov/DigitalPass/internal/payment"
	"github.com/atinyakov/DigitalPass/internal/photo"
	"github.com/atinyakov/DigitalPass/internal/session"
	"github.com/atinyakov/DigitalPass/internal/validation"
	"github.com/atinyakov/DigitalPass/internal/wizard"
)

// ErrNoApprovedPass is returned when the user has never been issued a pass.
var ErrNoApprovedPass = fmt.Errorf("%w: no approved pass", models.ErrNotFound)

// ApplicationRepository defines the persistence operations required by the
// application wizard.
type ApplicationRepository interface {
	PendingFinder
	CreateApplication(ctx context.Context, app models.PassApplication) error
	ListApplications(ctx context.Context, userID string) ([]models.PassApplication, error)
	FindActivePass(ctx context.Context, userID string, now time.Time) (models.PassApplication, error)
	DeletePending(ctx context.Context, userID, id string) error
}

// PaymentTracker reports whether a user's payment is being settled.
type PaymentTracker interface {
	InFlight(userID string) bool
}

// SessionSaver writes back a modified session.
type SessionSaver interface {
	Save(ctx context.Context, s *session.Session) error
}

// ApplicationService drives the application wizard of a session and exposes
// the user's records.
type ApplicationService struct {
	repo     ApplicationRepository
	sessions SessionSaver
	payments PaymentTracker
	events   events.Publisher
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

// NewApplicationService constructs an ApplicationService. payments and m may
// be nil.
func NewApplicationService(repo ApplicationRepository, sessions SessionSaver, payments PaymentTracker, pub events.Publisher, m *metrics.Metrics, log *zap.Logger) *ApplicationService {
	return &ApplicationService{repo: repo, sessions: sessions, payments: payments, events: pub, metrics: m, log: log, now: time.Now}
}

// Wizard returns the session's wizard, starting one when none exists. A new
// wizard is refused while a payment is pending or a pass is still valid.
func (s *ApplicationService) Wizard(ctx context.Context, sess *session.Session) (wizard.Snapshot, error) {
	w, err := s.open(ctx, sess)
	if err != nil {
		return wizard.Snapshot{}, err
	}
	return w.Snapshot(), nil
}

func (s *ApplicationService) open(ctx context.Context, sess *session.Session) (*wizard.Wizard, error) {
	if sess.Wizard != nil {
		return wizard.Resume(*sess.Wizard), nil
	}
	id, err := pendingID(ctx, s.repo, s.sessions, sess)
	if err != nil {
		return nil, err
	}
	if id != "" {
		return nil, models.ErrPendingExists
	}
	_, err = s.repo.FindActivePass(ctx, sess.User.ID, s.now())
	switch {
	case err == nil:
		return nil, models.ErrActivePassExists
	case !errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("find active pass: %w", err)
	}

	w := wizard.New(sess.User.ID)
	// the account details seed the personal section; the photo is always uploaded
	if err := w.SetPersonal(models.PersonalDetails{
		FullName: sess.User.FullName,
		Mobile:   sess.User.Mobile,
		Email:    sess.User.Email,
	}); err != nil {
		return nil, err
	}
	if err := s.store(ctx, sess, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *ApplicationService) store(ctx context.Context, sess *session.Session, w *wizard.Wizard) error {
	snap := w.Snapshot()
	sess.Wizard = &snap
	if err := s.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *ApplicationService) edit(ctx context.Context, sess *session.Session, apply func(w *wizard.Wizard) error) (wizard.Snapshot, error) {
	w, err := s.open(ctx, sess)
	if err != nil {
		return wizard.Snapshot{}, err
	}
	if err := apply(w); err != nil {
		return wizard.Snapshot{}, err
	}
	if err := s.store(ctx, sess, w); err != nil {
		return wizard.Snapshot{}, err
	}
	return w.Snapshot(), nil
}

// UpdatePersonal stores the personal section. A photo, when present, must be
// an image data URL within the size limit.
func (s *ApplicationService) UpdatePersonal(ctx context.Context, sess *session.Session, p models.PersonalDetails) (wizard.Snapshot, error) {
	if p.Photo != "" {
		if err := photo.CheckDataURL(p.Photo); err != nil {
			return wizard.Snapshot{}, validation.Errors{"photo": err.Error()}
		}
	}
	return s.edit(ctx, sess, func(w *wizard.Wizard) error { return w.SetPersonal(p) })
}

// UpdateEducation stores the education section.
func (s *ApplicationService) UpdateEducation(ctx context.Context, sess *session.Session, e models.EducationDetails) (wizard.Snapshot, error) {
	return s.edit(ctx, sess, func(w *wizard.Wizard) error { return w.SetEducation(e) })
}

// UpdateTravel stores the travel section.
func (s *ApplicationService) UpdateTravel(ctx context.Context, sess *session.Session, t models.TravelDetails) (wizard.Snapshot, error) {
	return s.edit(ctx, sess, func(w *wizard.Wizard) error { return w.SetTravel(t) })
}

// SetPhoto attaches an already checked photo data URL to the personal section.
func (s *ApplicationService) SetPhoto(ctx context.Context, sess *session.Session, dataURL string) (wizard.Snapshot, error) {
	return s.edit(ctx, sess, func(w *wizard.Wizard) error {
		p := w.Draft().Personal
		p.Photo = dataURL
		return w.SetPersonal(p)
	})
}

// Next advances the wizard when the current section validates. Field errors
// are returned as validation.Errors and leave the step unchanged.
func (s *ApplicationService) Next(ctx context.Context, sess *session.Session) (wizard.Snapshot, error) {
	w, err := s.open(ctx, sess)
	if err != nil {
		return wizard.Snapshot{}, err
	}
	from := w.State()
	if _, errs := w.Next(); !errs.OK() {
		s.metrics.IncValidationRejected(from.String())
		s.log.Debug("section rejected",
			zap.String("user_id", sess.User.ID),
			zap.Stringer("section", from),
			zap.Int("fields", len(errs)),
		)
		return w.Snapshot(), errs
	}
	if err := s.store(ctx, sess, w); err != nil {
		return wizard.Snapshot{}, err
	}
	return w.Snapshot(), nil
}

// Back returns to the previous section.
func (s *ApplicationService) Back(ctx context.Context, sess *session.Session) (wizard.Snapshot, error) {
	return s.edit(ctx, sess, func(w *wizard.Wizard) error {
		_, err := w.Back()
		return err
	})
}

// Confirm commits the reviewed draft as a pending application and hands the
// session over to payment.
func (s *ApplicationService) Confirm(ctx context.Context, sess *session.Session) (models.PassApplication, error) {
	w, err := s.open(ctx, sess)
	if err != nil {
		return models.PassApplication{}, err
	}
	now := s.now()
	if _, err := s.repo.FindActivePass(ctx, sess.User.ID, now); err == nil {
		return models.PassApplication{}, models.ErrActivePassExists
	} else if !errors.Is(err, models.ErrNotFound) {
		return models.PassApplication{}, fmt.Errorf("find active pass: %w", err)
	}

	app, err := w.Confirm(ctx, s.repo, now)
	if err != nil {
		return models.PassApplication{}, err
	}

	sess.PendingApplicationID = app.ApplicationID
	if err := s.store(ctx, sess, w); err != nil {
		return models.PassApplication{}, err
	}

	s.metrics.IncCommitted()
	s.log.Info("application committed",
		zap.String("user_id", sess.User.ID),
		zap.String("application_id", app.ApplicationID),
	)
	publish(ctx, s.events, s.log, events.Event{
		Type:          events.ApplicationCommitted,
		UserID:        sess.User.ID,
		ApplicationID: app.ApplicationID,
		At:            now,
	})
	return app, nil
}

// Abandon discards the draft and any application still awaiting payment. An
// application whose payment is being settled is kept and payment.ErrInFlight
// is returned.
func (s *ApplicationService) Abandon(ctx context.Context, sess *session.Session) error {
	id, err := pendingID(ctx, s.repo, s.sessions, sess)
	if err != nil {
		return err
	}
	if id != "" && s.payments != nil && s.payments.InFlight(sess.User.ID) {
		return payment.ErrInFlight
	}
	if id != "" {
		err := s.repo.DeletePending(ctx, sess.User.ID, id)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("discard pending application: %w", err)
		}
		s.log.Info("pending application abandoned", zap.String("application_id", id))
	}
	sess.ClearApplication()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// List returns the user's applications, oldest first.
func (s *ApplicationService) List(ctx context.Context, sess *session.Session) ([]models.PassApplication, error) {
	apps, err := s.repo.ListApplications(ctx, sess.User.ID)
	if err != nil {
		return nil, err
	}
	if apps == nil {
		apps = []models.PassApplication{}
	}
	return apps, nil
}

// Pass returns the user's most recently approved pass, active or not.
func (s *ApplicationService) Pass(ctx context.Context, sess *session.Session) (models.PassRecord, error) {
	apps, err := s.repo.ListApplications(ctx, sess.User.ID)
	if err != nil {
		return models.PassRecord{}, err
	}
	var latest *models.PassApplication
	for i := range apps {
		app := &apps[i]
		if app.Status != models.StatusApproved || app.PaymentDate == nil {
			continue
		}
		if latest == nil || app.PaymentDate.After(*latest.PaymentDate) {
			latest = app
		}
	}
	if latest == nil {
		return models.PassRecord{}, ErrNoApprovedPass
	}
	return issuance.Record(*latest)
}
