package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/atinyakov/DigitalPass/internal/models"
	"github.com/atinyakov/DigitalPass/internal/session"
)

// PendingFinder looks up the application a user still has to pay for.
type PendingFinder interface {
	FindPending(ctx context.Context, userID string) (models.PassApplication, error)
}

// pendingID returns the id of the user's application awaiting payment, or ""
// when there is none. A session that does not know about it yet, such as one
// started by a fresh login, is linked to it and saved.
func pendingID(ctx context.Context, repo PendingFinder, sessions SessionSaver, sess *session.Session) (string, error) {
	if sess.PendingApplicationID != "" {
		return sess.PendingApplicationID, nil
	}
	app, err := repo.FindPending(ctx, sess.User.ID)
	if errors.Is(err, models.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find pending application: %w", err)
	}
	sess.PendingApplicationID = app.ApplicationID
	if err := sessions.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return app.ApplicationID, nil
}
