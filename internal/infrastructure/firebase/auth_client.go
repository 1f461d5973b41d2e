package firebase

import (
	"context"

	"firebase.google.com/go/v4/auth"

	"workbee/pkg/errors"
)

// FirebaseAuthClient verifies Firebase ID tokens issued to workbee clients.
type FirebaseAuthClient struct {
	client *auth.Client
}

func NewFirebaseAuthClient(client *auth.Client) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
	}
}

// VerifyToken checks the ID token signature and expiry and returns its uid.
func (f *FirebaseAuthClient) VerifyToken(ctx context.Context, token string) (string, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", errors.Unauthorized("Invalid or expired token", err)
	}

	return result.UID, nil
}
