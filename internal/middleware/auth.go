// Package middleware provides the hub's HTTP middleware chain.
package middleware

import (
	"context"
	"net/http"
	"strings"

	svcerrors "github.com/qkgalias/capstone-hub/internal/errors"
	"github.com/qkgalias/capstone-hub/internal/httputil"
	"github.com/qkgalias/capstone-hub/internal/logging"
	"github.com/qkgalias/capstone-hub/internal/session"
)

// AccessTokenCookie carries the access token for browser navigation.
const AccessTokenCookie = "hub_access_token"

// Verifier checks an access token.
type Verifier interface {
	Verify(ctx context.Context, accessToken string) (*session.Session, error)
}

// AuthMiddleware requires a verified session on every request it wraps.
type AuthMiddleware struct {
	verifier  Verifier
	loginPath string
	logger    *logging.Logger
}

// NewAuthMiddleware creates the session gate. Lost sessions are sent to loginPath.
func NewAuthMiddleware(verifier Verifier, loginPath string, logger *logging.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:  verifier,
		loginPath: loginPath,
		logger:    logger,
	}
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := AccessToken(r)
		if err != nil {
			m.reject(w, r, err)
			return
		}

		sess, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			m.reject(w, r, err)
			return
		}

		ctx := session.NewContext(r.Context(), sess)
		m.logger.WithContext(ctx).Debug("session verified")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccessToken extracts the bearer token from the Authorization header or,
// failing that, the session cookie.
func AccessToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", svcerrors.Unauthorized("Invalid Authorization header format")
		}
		return strings.TrimSpace(parts[1]), nil
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", session.ErrSessionExpired
}

// reject answers a lost session: browsers are redirected to the login entry
// point, API clients get a 401 naming it.
func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	se := svcerrors.GetServiceError(err)
	if se == nil {
		se = svcerrors.SessionExpired(err)
	}

	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": se.HTTPStatus,
	}).Warn("authentication failed")

	if se.HTTPStatus == http.StatusUnauthorized && httputil.WantsHTML(r) {
		http.Redirect(w, r, m.loginPath, http.StatusSeeOther)
		return
	}
	if se.HTTPStatus == http.StatusUnauthorized {
		se = se.WithDetails("redirect", m.loginPath)
	}
	httputil.WriteServiceError(w, r, se)
}
