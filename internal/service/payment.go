package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/atinyakov/DigitalPass/internal/events"
	"github.com/atinyakov/DigitalPass/internal/issuance"
	"github.com/atinyakov/DigitalPass/internal/metrics"
	"github.com/atinyakov/DigitalPass/internal/models"
	"github.com/atinyakov/DigitalPass/internal/payment"
	"github.com/atinyakov/DigitalPass/internal/session"
)

const maxPassNumberAttempts = 5

var (
	// ErrNoPendingApplication is returned when the session has nothing to pay for.
	ErrNoPendingApplication = fmt.Errorf("%w: no application awaiting payment", models.ErrNotFound)
	// ErrPaymentFailed wraps settlement and approval failures.
	ErrPaymentFailed = errors.New("payment failed")
)

// ApprovalRepository defines the persistence operations required by payment.
type ApprovalRepository interface {
	PendingFinder
	GetApplication(ctx context.Context, id string) (models.PassApplication, error)
	Approve(ctx context.Context, id string, paidAt time.Time, passNumber string) (models.PassApplication, error)
}

// PaymentService authorizes the pending application of a session and issues
// its pass.
type PaymentService struct {
	repo     ApprovalRepository
	sessions SessionSaver
	settler  payment.Settler
	events   events.Publisher
	metrics  *metrics.Metrics
	log      *zap.Logger

	now           func() time.Time
	newPassNumber func(time.Time) string

	group singleflight.Group

	mu    sync.Mutex
	flows map[string]*payment.Flow // by user id
}

// NewPaymentService constructs a PaymentService. m may be nil.
func NewPaymentService(repo ApprovalRepository, sessions SessionSaver, settler payment.Settler, pub events.Publisher, m *metrics.Metrics, log *zap.Logger) *PaymentService {
	return &PaymentService{
		repo:          repo,
		sessions:      sessions,
		settler:       settler,
		events:        pub,
		metrics:       m,
		log:           log,
		now:           time.Now,
		newPassNumber: issuance.NewPassNumber,
		flows:         make(map[string]*payment.Flow),
	}
}

// flow returns the payment flow of the user's pending application, found
// through the store when the session does not carry it. After a successful
// payment the finished flow stays reachable so that a repeated submit returns
// the same pass.
func (s *PaymentService) flow(ctx context.Context, sess *session.Session) (*payment.Flow, error) {
	id, err := pendingID(ctx, s.repo, s.sessions, sess)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flows[sess.User.ID]
	switch {
	case id == "" && ok && f.State() == payment.StateSuccess:
		return f, nil
	case id == "":
		return nil, ErrNoPendingApplication
	case ok && f.ApplicationID() == id:
		return f, nil
	}
	f = payment.NewFlow(id)
	s.flows[sess.User.ID] = f
	return f, nil
}

// InFlight reports whether the user's payment is currently being settled.
func (s *PaymentService) InFlight(userID string) bool {
	s.mu.Lock()
	f, ok := s.flows[userID]
	s.mu.Unlock()
	return ok && f.State() == payment.StateProcessing
}

// Status reports the flow of the session's pending application.
func (s *PaymentService) Status(ctx context.Context, sess *session.Session) (payment.Status, error) {
	f, err := s.flow(ctx, sess)
	if err != nil {
		return payment.Status{}, err
	}
	return f.Status(), nil
}

// Start opens PIN entry after checking the application is still pending.
func (s *PaymentService) Start(ctx context.Context, sess *session.Session) (payment.Status, error) {
	f, err := s.flow(ctx, sess)
	if err != nil {
		return payment.Status{}, err
	}
	if f.State() == payment.StateIdle {
		app, err := s.repo.GetApplication(ctx, f.ApplicationID())
		if err != nil {
			return payment.Status{}, fmt.Errorf("load application: %w", err)
		}
		if app.UserID != sess.User.ID {
			return payment.Status{}, ErrNoPendingApplication
		}
		if app.Status != models.StatusPending {
			return payment.Status{}, models.ErrNotPending
		}
	}
	if err := f.Begin(); err != nil {
		return payment.Status{}, err
	}
	return f.Status(), nil
}

// Press enters PIN digits.
func (s *PaymentService) Press(ctx context.Context, sess *session.Session, digits string) (payment.Status, error) {
	f, err := s.flow(ctx, sess)
	if err != nil {
		return payment.Status{}, err
	}
	for _, d := range digits {
		if err := f.Press(d); err != nil {
			return f.Status(), err
		}
	}
	return f.Status(), nil
}

// Delete removes the last PIN digit.
func (s *PaymentService) Delete(ctx context.Context, sess *session.Session) (payment.Status, error) {
	f, err := s.flow(ctx, sess)
	if err != nil {
		return payment.Status{}, err
	}
	if err := f.Delete(); err != nil {
		return f.Status(), err
	}
	return f.Status(), nil
}

// Retry returns a failed payment to PIN entry.
func (s *PaymentService) Retry(ctx context.Context, sess *session.Session) (payment.Status, error) {
	f, err := s.flow(ctx, sess)
	if err != nil {
		return payment.Status{}, err
	}
	if err := f.Retry(); err != nil {
		return f.Status(), err
	}
	return f.Status(), nil
}

// Submit settles the payment and approves the application. Submits arriving
// while the payment is processing, or after it succeeded, wait for and return
// the same outcome instead of settling again.
func (s *PaymentService) Submit(ctx context.Context, sess *session.Session) (models.PassRecord, error) {
	f, err := s.flow(ctx, sess)
	if err != nil {
		return models.PassRecord{}, err
	}
	if _, err := f.Submit(); err != nil && !errors.Is(err, payment.ErrInFlight) && !errors.Is(err, payment.ErrSettled) {
		return models.PassRecord{}, err
	}

	// an in-flight payment is not cancelled by the client going away
	settleCtx := context.WithoutCancel(ctx)
	v, err, shared := s.group.Do(f.ApplicationID(), func() (any, error) {
		return s.settle(settleCtx, sess.User.ID, f)
	})
	if shared {
		s.log.Debug("joined in-flight payment", zap.String("application_id", f.ApplicationID()))
	}
	if err != nil {
		return models.PassRecord{}, err
	}
	rec := v.(models.PassRecord)

	if sess.PendingApplicationID == rec.ApplicationID {
		sess.ClearApplication()
		if err := s.sessions.Save(ctx, sess); err != nil {
			return models.PassRecord{}, fmt.Errorf("save session: %w", err)
		}
	}
	return rec, nil
}

func (s *PaymentService) settle(ctx context.Context, userID string, f *payment.Flow) (models.PassRecord, error) {
	if rec, done, err := f.Outcome(); done {
		if err != nil {
			return models.PassRecord{}, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
		}
		return rec, nil
	}
	if f.State() != payment.StateProcessing {
		return models.PassRecord{}, payment.ErrTransition
	}

	start := time.Now()
	id := f.ApplicationID()
	rec, err := s.authorize(ctx, id, f.PIN())
	if err != nil {
		_ = f.Fail(err)
		s.metrics.ObservePayment("failed", time.Since(start))
		if errors.Is(err, models.ErrStateViolation) {
			s.log.Error("approve application", zap.String("application_id", id), zap.Error(err))
		} else {
			s.log.Warn("payment failed", zap.String("application_id", id), zap.Error(err))
		}
		publish(ctx, s.events, s.log, events.Event{
			Type:          events.PaymentFailed,
			UserID:        userID,
			ApplicationID: id,
			Reason:        err.Error(),
			At:            s.now(),
		})
		return models.PassRecord{}, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}

	_ = f.Complete(rec)
	s.metrics.ObservePayment("approved", time.Since(start))
	s.log.Info("pass issued",
		zap.String("application_id", id),
		zap.String("pass_number", rec.PassNumber),
		zap.Time("valid_to", rec.ValidTo),
	)
	publish(ctx, s.events, s.log, events.Event{
		Type:          events.PaymentApproved,
		UserID:        userID,
		ApplicationID: id,
		PassNumber:    rec.PassNumber,
		At:            s.now(),
	})
	return rec, nil
}

func (s *PaymentService) authorize(ctx context.Context, id, pin string) (models.PassRecord, error) {
	if err := s.settler.Settle(ctx, id, pin); err != nil {
		return models.PassRecord{}, err
	}
	for attempt := 1; ; attempt++ {
		paidAt := s.now()
		app, err := s.repo.Approve(ctx, id, paidAt, s.newPassNumber(paidAt))
		if errors.Is(err, models.ErrPassNumberTaken) && attempt < maxPassNumberAttempts {
			s.log.Warn("pass number collision, regenerating", zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return models.PassRecord{}, err
		}
		return issuance.Record(app)
	}
}
