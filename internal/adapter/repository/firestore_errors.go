package repository

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"workbee/pkg/errors"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
	jobsCollection          = "jobs"
	jobLogsCollection       = "job_logs"
)

// mapError converts Firestore failures into the application taxonomy. Errors
// that are already AppErrors (guard failures raised inside a transaction) pass
// through untouched.
func mapError(resource, message string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch status.Code(err) {
	case codes.NotFound:
		return errors.NotFound(resource, err)
	case codes.InvalidArgument:
		return errors.Internal(message, err)
	}
	return errors.ExternalService(message, err)
}
