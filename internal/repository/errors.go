package repository

import (
	"errors"

	"github.com/lib/pq"
)

const (
	pendingIndex     = "applications_one_pending"
	passNumberUnique = "applications_pass_number_key"
)

// uniqueViolation reports whether err is a PostgreSQL unique_violation and
// returns the violated constraint.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}
