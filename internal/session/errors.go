package session

import (
	svcerrors "github.com/qkgalias/capstone-hub/internal/errors"
)

// Sentinel errors. Each is a *ServiceError so the HTTP layer maps it
// directly; match them with errors.Is.
var (
	ErrConfiguration      = svcerrors.Configuration(nil)
	ErrInvalidUsername    = svcerrors.InvalidUsername()
	ErrInvalidCredentials = svcerrors.InvalidCredentials(nil)
	ErrSessionExpired     = svcerrors.SessionExpired(nil)
)
