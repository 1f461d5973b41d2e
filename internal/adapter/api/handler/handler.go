package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"workbee/internal/adapter/api/middleware"
	"workbee/pkg/errors"
)

// bind decodes the request body and runs the validate tags on it.
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return errors.Validation("Invalid request body")
	}
	return c.Validate(req)
}

func currentUser(c echo.Context) (string, error) {
	return middleware.UserID(c)
}

// afterParam reads the ?after= sequence cursor. Missing means from the start.
func afterParam(c echo.Context) (int64, error) {
	raw := c.QueryParam("after")
	if raw == "" {
		return 0, nil
	}
	after, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || after < 0 {
		return 0, errors.Validation("after must be a non-negative integer")
	}
	return after, nil
}
