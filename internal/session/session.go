// Package session gates the hub behind its single configured account.
//
// A login is accepted only when the submitted username matches the
// configured one (case-insensitively) and the identity service accepts the
// configured email with the submitted password. Every protected request is
// re-verified against the same account.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qkgalias/capstone-hub/internal/logging"
	"github.com/qkgalias/capstone-hub/supabase/client"
)

// IdentityProvider is the subset of the GoTrue client the gateway uses.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*client.Session, error)
	RefreshToken(ctx context.Context, refreshToken string) (*client.Session, error)
	GetUser(ctx context.Context, accessToken string) (*client.User, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Config is the single-account login configuration.
type Config struct {
	Email    string
	Username string
	URL      string
	APIKey   string
	// JWTSecret enables local access-token verification. When empty every
	// verification asks the identity service.
	JWTSecret string
}

// Validate reports the first missing login setting.
func (c Config) Validate() error {
	missing := make([]string, 0, 4)
	if strings.TrimSpace(c.Email) == "" {
		missing = append(missing, "LOGIN_EMAIL")
	}
	if strings.TrimSpace(c.Username) == "" {
		missing = append(missing, "LOGIN_USERNAME")
	}
	if strings.TrimSpace(c.URL) == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, "SUPABASE_ANON_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// TokenPair is returned to the client after a login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Session is a verified access token.
type Session struct {
	AccountID   string
	Email       string
	AccessToken string
	ExpiresAt   time.Time
}

type contextKey struct{}

// NewContext returns ctx carrying s and its account id.
func NewContext(ctx context.Context, s *Session) context.Context {
	ctx = context.WithValue(ctx, contextKey{}, s)
	return logging.WithAccountID(ctx, s.AccountID)
}

// FromContext returns the session stored by NewContext.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}

// Gateway implements login, refresh, verification and logout.
type Gateway struct {
	cfg      Config
	idp      IdentityProvider
	verifier *TokenVerifier
	logger   *logging.Logger
}

// NewGateway creates a gateway. idp may be nil when the service URL or key
// is missing; Login then fails with ErrConfiguration.
func NewGateway(cfg Config, idp IdentityProvider, logger *logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.NewDiscard()
	}
	g := &Gateway{cfg: cfg, idp: idp, logger: logger}
	if cfg.JWTSecret != "" {
		g.verifier = NewTokenVerifier([]byte(cfg.JWTSecret))
	}
	return g
}

// Login exchanges a username and password for a token pair.
func (g *Gateway) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	if err := g.configured(); err != nil {
		g.logger.WithContext(ctx).WithError(err).Error("login rejected: not configured")
		return nil, err
	}

	if !strings.EqualFold(username, strings.TrimSpace(g.cfg.Username)) {
		g.logger.LogSecurityEvent(ctx, "login_rejected", map[string]interface{}{"reason": "username"})
		return nil, ErrInvalidUsername
	}

	sess, err := g.idp.SignInWithPassword(ctx, g.cfg.Email, password)
	if err != nil || sess == nil || sess.AccessToken == "" {
		g.logger.LogSecurityEvent(ctx, "login_rejected", map[string]interface{}{
			"reason": "credentials",
			"cause":  errString(err),
		})
		return nil, ErrInvalidCredentials
	}

	g.logger.WithContext(ctx).Info("login succeeded")
	return pairOf(sess), nil
}

// Refresh exchanges a refresh token for a new token pair.
func (g *Gateway) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := g.configured(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrSessionExpired
	}

	sess, err := g.idp.RefreshToken(ctx, refreshToken)
	if err != nil || sess == nil || sess.AccessToken == "" {
		g.logger.WithContext(ctx).WithError(err).Warn("refresh rejected")
		return nil, ErrSessionExpired
	}
	if sess.User != nil && !g.isAccount(sess.User.Email) {
		g.logger.LogSecurityEvent(ctx, "refresh_rejected", map[string]interface{}{"reason": "account"})
		return nil, ErrSessionExpired
	}
	return pairOf(sess), nil
}

// Verify checks an access token and returns the session it belongs to.
func (g *Gateway) Verify(ctx context.Context, accessToken string) (*Session, error) {
	if err := g.configured(); err != nil {
		return nil, err
	}
	if accessToken == "" {
		return nil, ErrSessionExpired
	}

	var (
		sess *Session
		err  error
	)
	if g.verifier != nil {
		sess, err = g.verifier.Verify(accessToken)
	} else {
		sess, err = g.verifyRemote(ctx, accessToken)
	}
	if err != nil {
		g.logger.WithContext(ctx).WithError(err).Debug("session verification failed")
		return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	if !g.isAccount(sess.Email) {
		g.logger.LogSecurityEvent(ctx, "session_rejected", map[string]interface{}{"reason": "account"})
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Logout revokes the session at the identity service. Failures are logged
// and not returned; local teardown proceeds regardless.
func (g *Gateway) Logout(ctx context.Context, accessToken string) {
	if g.idp == nil || accessToken == "" {
		return
	}
	if err := g.idp.SignOut(ctx, accessToken); err != nil {
		g.logger.WithContext(ctx).WithError(err).Warn("sign out failed")
	}
}

func (g *Gateway) verifyRemote(ctx context.Context, accessToken string) (*Session, error) {
	user, err := g.idp.GetUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if user == nil || user.ID == "" {
		return nil, errors.New("identity service returned no user")
	}
	return &Session{
		AccountID:   user.ID,
		Email:       user.Email,
		AccessToken: accessToken,
	}, nil
}

func (g *Gateway) configured() error {
	if err := g.cfg.Validate(); err != nil {
		return err
	}
	if g.idp == nil {
		return fmt.Errorf("%w: identity service unavailable", ErrConfiguration)
	}
	return nil
}

func (g *Gateway) isAccount(email string) bool {
	return strings.EqualFold(strings.TrimSpace(email), strings.TrimSpace(g.cfg.Email))
}

func pairOf(s *client.Session) *TokenPair {
	return &TokenPair{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresIn:    s.ExpiresIn,
	}
}

func errString(err error) string {
	if err == nil {
		return "no session returned"
	}
	return err.Error()
}
