package httpapi

import (
	"errors"
	"net/http"

	"github.com/qkgalias/capstone-hub/internal/httputil"
	"github.com/qkgalias/capstone-hub/internal/metrics"
	"github.com/qkgalias/capstone-hub/internal/middleware"
	"github.com/qkgalias/capstone-hub/internal/session"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	pair, err := s.gateway.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, session.ErrConfiguration) {
			s.metrics.RecordLogin(metrics.LoginNotConfigured)
		} else {
			s.metrics.RecordLogin(metrics.LoginInvalid)
		}
		httputil.WriteServiceError(w, r, err)
		return
	}

	s.metrics.RecordLogin(metrics.LoginSuccess)
	setSessionCookie(w, r, pair)
	httputil.WriteJSON(w, http.StatusOK, pair)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	pair, err := s.gateway.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	setSessionCookie(w, r, pair)
	httputil.WriteJSON(w, http.StatusOK, pair)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if ok {
		s.gateway.Logout(r.Context(), sess.AccessToken)
		s.boards.Close(sess.AccountID)
	}
	clearSessionCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, pair *session.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		MaxAge:   pair.ExpiresIn,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
