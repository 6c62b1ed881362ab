package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atinyakov/DigitalPass/internal/events"
	"github.com/atinyakov/DigitalPass/internal/models"
	"github.com/atinyakov/DigitalPass/internal/payment"
	"github.com/atinyakov/DigitalPass/internal/session"
)

func (f *fixture) committed(t *testing.T) models.PassApplication {
	t.Helper()
	f.fill(t)
	app, err := f.apps.Confirm(context.Background(), f.sess)
	require.NoError(t, err)
	return app
}

// payments builds the payment service and rewires the application service to
// consult it.
func (f *fixture) payments(settler payment.Settler) *PaymentService {
	svc := NewPaymentService(f.store, f.sessions, settler, f.pub, f.metrics, zap.NewNop())
	f.apps = NewApplicationService(f.store, f.sessions, svc, f.pub, f.metrics, zap.NewNop())
	return svc
}

func instant() payment.Settler { return payment.NewSimulatedSettler(0) }

func TestPayment_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := f.committed(t)
	svc := f.payments(instant())

	st, err := svc.Start(ctx, f.sess)
	require.NoError(t, err)
	assert.Equal(t, payment.StatePinEntry, st.State)

	_, err = svc.Press(ctx, f.sess, "12")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, f.sess)
	assert.ErrorIs(t, err, payment.ErrPinIncomplete)

	st, err = svc.Press(ctx, f.sess, "345")
	require.NoError(t, err)
	assert.Equal(t, 4, st.Digits)

	rec, err := svc.Submit(ctx, f.sess)
	require.NoError(t, err)
	assert.Equal(t, app.ApplicationID, rec.ApplicationID)
	assert.Equal(t, models.StatusApproved, rec.Status)
	assert.Regexp(t, `^TS\d{8}[0-9A-Z]{4}$`, rec.PassNumber)
	require.NotNil(t, rec.PaymentDate)
	assert.True(t, rec.ValidFrom.Equal(*rec.PaymentDate))
	assert.True(t, rec.ValidTo.After(rec.ValidFrom))

	assert.Empty(t, f.sess.PendingApplicationID)
	assert.Nil(t, f.sess.Wizard)

	stored, err := f.store.GetApplication(ctx, app.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, rec.PassNumber, stored.PassNumber)

	again, err := svc.Submit(ctx, f.sess)
	require.NoError(t, err)
	assert.Equal(t, rec.PassNumber, again.PassNumber)

	assert.Equal(t, []events.Type{events.ApplicationCommitted, events.PaymentApproved}, f.pub.types())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PaymentOutcome.WithLabelValues("approved")))
}

func TestPayment_NoPending(t *testing.T) {
	f := newFixture(t)
	svc := f.payments(instant())
	_, err := svc.Start(context.Background(), f.sess)
	assert.ErrorIs(t, err, ErrNoPendingApplication)
	_, err = svc.Submit(context.Background(), f.sess)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPayment_ConcurrentSubmitSettlesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.committed(t)

	var calls atomic.Int32
	release := make(chan struct{})
	settler := payment.SettlerFunc(func(ctx context.Context, _, pin string) error {
		calls.Add(1)
		if pin != "1234" {
			t.Errorf("settled with pin %q", pin)
		}
		<-release
		return nil
	})
	svc := f.payments(settler)
	_, err := svc.Start(ctx, f.sess)
	require.NoError(t, err)
	_, err = svc.Press(ctx, f.sess, "1234")
	require.NoError(t, err)

	const submits = 5
	var wg sync.WaitGroup
	results := make([]models.PassRecord, submits)
	errs := make([]error, submits)
	for i := 0; i < submits; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := *f.sess
			results[i], errs[i] = svc.Submit(ctx, &sess)
		}(i)
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	st, err := svc.Status(ctx, f.sess)
	require.NoError(t, err)
	assert.Equal(t, payment.StateProcessing, st.State)
	_, err = svc.Press(ctx, f.sess, "9")
	assert.ErrorIs(t, err, payment.ErrProcessing)

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < submits; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].PassNumber, results[i].PassNumber)
	}
	apps, err := f.store.ListApplications(ctx, f.sess.User.ID)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, models.StatusApproved, apps[0].Status)
}

func TestPayment_FailureAndRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := f.committed(t)

	decline := true
	settler := payment.SettlerFunc(func(context.Context, string, string) error {
		if decline {
			return payment.ErrDeclined
		}
		return nil
	})
	svc := f.payments(settler)
	_, err := svc.Start(ctx, f.sess)
	require.NoError(t, err)
	_, err = svc.Press(ctx, f.sess, "0000")
	require.NoError(t, err)

	_, err = svc.Submit(ctx, f.sess)
	assert.ErrorIs(t, err, ErrPaymentFailed)
	assert.ErrorIs(t, err, payment.ErrDeclined)

	st, err := svc.Status(ctx, f.sess)
	require.NoError(t, err)
	assert.Equal(t, payment.StateFailure, st.State)
	assert.Equal(t, "payment declined", st.Error)

	stored, err := f.store.GetApplication(ctx, app.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Empty(t, stored.PassNumber)
	assert.Equal(t, app.ApplicationID, f.sess.PendingApplicationID)

	_, err = svc.Submit(ctx, f.sess)
	assert.ErrorIs(t, err, payment.ErrTransition)

	st, err = svc.Retry(ctx, f.sess)
	require.NoError(t, err)
	assert.Equal(t, payment.StatePinEntry, st.State)
	assert.Equal(t, 0, st.Digits)

	decline = false
	_, err = svc.Press(ctx, f.sess, "0000")
	require.NoError(t, err)
	rec, err := svc.Submit(ctx, f.sess)
	require.NoError(t, err)
	assert.Equal(t, app.ApplicationID, rec.ApplicationID)
	assert.Equal(t, []events.Type{events.ApplicationCommitted, events.PaymentFailed, events.PaymentApproved}, f.pub.types())
}

func TestPayment_PassNumberCollisionRegenerates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	other := models.PassApplication{
		Draft:         models.Draft{UserID: "u2", Travel: models.TravelDetails{Duration: 1}},
		ApplicationID: "other",
		AppliedAt:     time.Now(),
	}
	require.NoError(t, f.store.CreateApplication(ctx, other))
	_, err := f.store.Approve(ctx, "other", time.Now(), "TSTAKEN")
	require.NoError(t, err)

	f.committed(t)
	svc := f.payments(instant())
	numbers := []string{"TSTAKEN", "TSTAKEN", "TSFRESH"}
	svc.newPassNumber = func(time.Time) string {
		n := numbers[0]
		numbers = numbers[1:]
		return n
	}

	_, err = svc.Start(ctx, f.sess)
	require.NoError(t, err)
	_, err = svc.Press(ctx, f.sess, "1111")
	require.NoError(t, err)
	rec, err := svc.Submit(ctx, f.sess)
	require.NoError(t, err)
	assert.Equal(t, "TSFRESH", rec.PassNumber)
}

func TestPayment_CollisionsExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	other := models.PassApplication{
		Draft:         models.Draft{UserID: "u2", Travel: models.TravelDetails{Duration: 1}},
		ApplicationID: "other",
		AppliedAt:     time.Now(),
	}
	require.NoError(t, f.store.CreateApplication(ctx, other))
	_, err := f.store.Approve(ctx, "other", time.Now(), "TSTAKEN")
	require.NoError(t, err)

	app := f.committed(t)
	svc := f.payments(instant())
	svc.newPassNumber = func(time.Time) string { return "TSTAKEN" }

	_, err = svc.Start(ctx, f.sess)
	require.NoError(t, err)
	_, err = svc.Press(ctx, f.sess, "1111")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, f.sess)
	assert.ErrorIs(t, err, models.ErrPassNumberTaken)

	stored, err := f.store.GetApplication(ctx, app.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestPayment_StartRejectsApproved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := f.committed(t)
	_, err := f.store.Approve(ctx, app.ApplicationID, time.Now(), "TSX")
	require.NoError(t, err)

	svc := f.payments(instant())
	_, err = svc.Start(ctx, f.sess)
	assert.True(t, errors.Is(err, models.ErrNotPending))
}

func TestPayment_PendingFoundFromNewSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := f.committed(t)
	svc := f.payments(instant())

	// a fresh login carries no link to the committed application
	fresh := &session.Session{ID: "s2", User: f.sess.User, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, f.sessions.Save(ctx, fresh))

	st, err := svc.Start(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, payment.StatePinEntry, st.State)
	assert.Equal(t, app.ApplicationID, st.ApplicationID)

	stored, err := f.sessions.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, app.ApplicationID, stored.PendingApplicationID)

	_, err = svc.Press(ctx, fresh, "4321")
	require.NoError(t, err)
	rec, err := svc.Submit(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, app.ApplicationID, rec.ApplicationID)
	assert.Empty(t, fresh.PendingApplicationID)
}

func TestPayment_AbandonRefusedWhileSettling(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := f.committed(t)

	release := make(chan struct{})
	svc := f.payments(payment.SettlerFunc(func(ctx context.Context, _, _ string) error {
		<-release
		return nil
	}))
	_, err := svc.Start(ctx, f.sess)
	require.NoError(t, err)
	_, err = svc.Press(ctx, f.sess, "1234")
	require.NoError(t, err)
	assert.False(t, svc.InFlight(f.sess.User.ID))

	done := make(chan error, 1)
	go func() {
		sess := *f.sess
		_, err := svc.Submit(ctx, &sess)
		done <- err
	}()
	require.Eventually(t, func() bool { return svc.InFlight(f.sess.User.ID) }, time.Second, 5*time.Millisecond)

	other := *f.sess
	err = f.apps.Abandon(ctx, &other)
	assert.ErrorIs(t, err, payment.ErrInFlight)
	stored, err := f.store.GetApplication(ctx, app.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, svc.InFlight(f.sess.User.ID))
	stored, err = f.store.GetApplication(ctx, app.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
}
