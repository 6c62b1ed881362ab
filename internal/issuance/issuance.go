// Package issuance derives pass numbers and validity windows for approved
// applications. Validity is always recomputed from the payment date and the
// duration so that stored records and rendered passes cannot drift apart.
package issuance

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/DigitalPass/internal/models"
)

// PassPrefix starts every pass number.
const PassPrefix = "TS"

const suffixAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// ErrNotApproved is returned when a pass view is requested for an application
// that has not been paid for.
var ErrNotApproved = errors.New("application is not approved")

// Pass is the result of issuing a pass.
type Pass struct {
	PassNumber string
	ValidFrom  time.Time
	ValidTo    time.Time
}

// Issue assigns a fresh pass number and the validity window starting at approvedAt.
func Issue(approvedAt time.Time, duration models.Duration) Pass {
	from, to := Validity(approvedAt, duration)
	return Pass{
		PassNumber: NewPassNumber(approvedAt),
		ValidFrom:  from,
		ValidTo:    to,
	}
}

// Validity returns the window [approvedAt, approvedAt + duration months].
func Validity(approvedAt time.Time, duration models.Duration) (time.Time, time.Time) {
	return approvedAt, AddMonths(approvedAt, int(duration))
}

// AddMonths moves t forward by n calendar months. When the target month is
// shorter than t's day of month, the day is clamped to the target month's last
// day, so Jan 31 + 1 month is the last day of February.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// NewPassNumber builds "TS" + the last 8 digits of the Unix milliseconds of at
// + 4 random characters. The record store rejects duplicates, callers
// regenerate on ErrPassNumberTaken.
func NewPassNumber(at time.Time) string {
	millis := fmt.Sprintf("%08d", at.UnixMilli()%100_000_000)
	return PassPrefix + millis + randomSuffix(4)
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("issuance: read random: %v", err))
	}
	for i, b := range buf {
		buf[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return string(buf)
}

// Record builds the pass view of an approved application.
func Record(app models.PassApplication) (models.PassRecord, error) {
	if app.Status != models.StatusApproved || app.PaymentDate == nil || app.PassNumber == "" {
		return models.PassRecord{}, ErrNotApproved
	}
	from, to := Validity(*app.PaymentDate, app.Travel.Duration)
	return models.PassRecord{PassApplication: app, ValidFrom: from, ValidTo: to}, nil
}

// Active reports whether the pass of app is approved and still valid at now.
func Active(app models.PassApplication, now time.Time) bool {
	rec, err := Record(app)
	if err != nil {
		return false
	}
	return now.Before(rec.ValidTo)
}
