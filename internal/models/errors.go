package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist in the store.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken is returned when registering an already registered email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is the single notice for any login mismatch.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrStateViolation marks an attempted transition that breaks a record invariant.
	ErrStateViolation = errors.New("state violation")
)

var (
	// ErrNotPending is returned when approving an application that is not pending.
	ErrNotPending = fmt.Errorf("%w: application is not pending", ErrStateViolation)
	// ErrPassNumberTaken is returned when a pass number was already issued.
	ErrPassNumberTaken = fmt.Errorf("%w: pass number already issued", ErrStateViolation)
	// ErrPendingExists is returned when a user already has a pending application.
	ErrPendingExists = fmt.Errorf("%w: a pending application already exists", ErrStateViolation)
	// ErrActivePassExists is returned when a user already holds a pass that is still valid.
	ErrActivePassExists = fmt.Errorf("%w: an active pass already exists", ErrStateViolation)
)
