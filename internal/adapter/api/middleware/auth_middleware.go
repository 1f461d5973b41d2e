package middleware

import (
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"workbee/internal/usecase"
	"workbee/pkg/errors"
	"workbee/pkg/response"
)

const ContextUserID = "uid"

type AuthMiddleware struct {
	verifier usecase.TokenVerifier
}

func NewAuthMiddleware(verifier usecase.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

// Authenticate resolves the bearer token and stores the user id under "uid".
// Browsers cannot set headers on a websocket upgrade, so a ?token= query
// parameter is accepted there when the header is absent. Other routes ignore
// it to keep tokens out of access logs.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := bearerToken(c)
		if err != nil {
			return response.Error(c, err)
		}

		uid, err := m.verifier.VerifyToken(c.Request().Context(), token)
		if err != nil || uid == "" {
			return response.Error(c, errors.Unauthorized("Invalid or expired token", err))
		}

		c.Set(ContextUserID, uid)
		return next(c)
	}
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if websocket.IsWebSocketUpgrade(c.Request()) {
			if token := c.QueryParam("token"); token != "" {
				return token, nil
			}
		}
		return "", errors.Unauthorized("Authorization header is required", nil)
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", errors.Unauthorized("Invalid authorization format", nil)
	}
	return strings.TrimSpace(parts[1]), nil
}

// UserID returns the authenticated user set by Authenticate.
func UserID(c echo.Context) (string, error) {
	uid, ok := c.Get(ContextUserID).(string)
	if !ok || uid == "" {
		return "", errors.Unauthorized("Authentication required", nil)
	}
	return uid, nil
}
