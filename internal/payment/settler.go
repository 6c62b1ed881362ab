package payment

import (
	"context"
	"errors"
	"time"
)

// DefaultSettlementDelay mimics the processing time of a card network.
const DefaultSettlementDelay = 2 * time.Second

// ErrDeclined is returned by a settler that refuses the payment.
var ErrDeclined = errors.New("payment declined")

// Settler authorizes a payment for an application with the entered PIN.
type Settler interface {
	Settle(ctx context.Context, applicationID, pin string) error
}

// SimulatedSettler accepts every PIN after Delay.
type SimulatedSettler struct {
	Delay time.Duration
}

// NewSimulatedSettler returns a settler waiting delay, or DefaultSettlementDelay when delay is negative.
func NewSimulatedSettler(delay time.Duration) *SimulatedSettler {
	if delay < 0 {
		delay = DefaultSettlementDelay
	}
	return &SimulatedSettler{Delay: delay}
}

// Settle waits Delay and accepts the payment unless ctx ends first.
func (s *SimulatedSettler) Settle(ctx context.Context, _, _ string) error {
	if s.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SettlerFunc adapts a function to Settler.
type SettlerFunc func(ctx context.Context, applicationID, pin string) error

// Settle calls f.
func (f SettlerFunc) Settle(ctx context.Context, applicationID, pin string) error {
	return f(ctx, applicationID, pin)
}
