package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userFacing struct{ msg string }

func (u userFacing) Error() string       { return "internal: " + u.msg }
func (u userFacing) UserMessage() string { return u.msg }

func TestLoginFailuresShareMessage(t *testing.T) {
	username := InvalidUsername()
	creds := InvalidCredentials(stderrors.New("invalid_grant"))

	assert.Equal(t, username.Message, creds.Message)
	assert.Equal(t, http.StatusUnauthorized, username.HTTPStatus)
	assert.Equal(t, http.StatusUnauthorized, creds.HTTPStatus)
	assert.NotEqual(t, username.Code, creds.Code)
}

func TestConfigurationIsServerError(t *testing.T) {
	err := Configuration(stderrors.New("LOGIN_EMAIL missing"))
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
	assert.Equal(t, MessageNotConfigured, err.Message)
}

func TestGetServiceErrorUnwrapsChain(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", Validation("title is required"))

	se := GetServiceError(wrapped)
	require.NotNil(t, se)
	assert.Equal(t, CodeValidation, se.Code)
	assert.True(t, Is(wrapped, CodeValidation))
	assert.False(t, Is(wrapped, CodeFetch))
	assert.Nil(t, GetServiceError(stderrors.New("plain")))
}

func TestFetchPassesUserMessageThrough(t *testing.T) {
	err := Fetch(userFacing{msg: "JWT expired"})
	assert.Equal(t, "JWT expired", err.Message)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus)

	plain := Write(stderrors.New("connection refused"))
	assert.Equal(t, "connection refused", plain.Message)
}

func TestWithDetailsDoesNotMutateOriginal(t *testing.T) {
	base := Unauthorized("")
	withRedirect := base.WithDetails("redirect", "/login")

	assert.Nil(t, base.Details)
	assert.Equal(t, "/login", withRedirect.Details["redirect"])
	assert.Equal(t, "Unauthorized", base.Message)
}

func TestRateLimitDetails(t *testing.T) {
	err := RateLimitExceeded(1, "1s")
	assert.Equal(t, http.StatusTooManyRequests, err.HTTPStatus)
	assert.Equal(t, 1, err.Details["limit"])
	assert.Equal(t, "1s", err.Details["window"])
}

func TestIsMatchesCodeAcrossCopies(t *testing.T) {
	sentinel := ConfirmationRequired("confirm first")
	withPrompt := sentinel.WithDetails("prompt", "Delete?")

	assert.True(t, stderrors.Is(withPrompt, sentinel))
	assert.True(t, stderrors.Is(fmt.Errorf("wrap: %w", withPrompt), sentinel))
	assert.False(t, stderrors.Is(withPrompt, Validation("confirm first")))
}
