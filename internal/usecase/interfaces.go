package usecase

import "context"

// TokenVerifier resolves a bearer token to the authenticated user id.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// Notifier pushes a live event to a user's open sessions. Delivery is best
// effort: offline users simply miss it.
type Notifier interface {
	Notify(userID, eventType string, data interface{})
}

const (
	NotifyMessageCreated = "message.created"
	NotifyJobCreated     = "job.created"
	NotifyJobUpdated     = "job.updated"
	NotifyRateLimited    = "rate_limit_exceeded"
)

type nopNotifier struct{}

func (nopNotifier) Notify(string, string, interface{}) {}
