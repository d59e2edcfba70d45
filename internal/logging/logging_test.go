package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captured(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l := New("hub", "debug", "json")
	l.SetOutput(&buf)
	return l, &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &out))
	return out
}

func TestNewFallsBackToInfo(t *testing.T) {
	l := New("hub", "nonsense", "json")
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	assert.Equal(t, "hub", l.Service())
}

func TestWithContextAddsFields(t *testing.T) {
	l, buf := captured(t)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithAccountID(ctx, "acct-1")
	l.WithContext(ctx).Info("hello")

	line := lastLine(t, buf)
	assert.Equal(t, "hub", line["service"])
	assert.Equal(t, "trace-1", line["trace_id"])
	assert.Equal(t, "acct-1", line["account_id"])
}

func TestLogRequestLevelFollowsStatus(t *testing.T) {
	l, buf := captured(t)
	ctx := context.Background()

	l.LogRequest(ctx, http.MethodGet, "/api/board", http.StatusOK, 5*time.Millisecond)
	assert.Equal(t, "info", lastLine(t, buf)["level"])

	l.LogRequest(ctx, http.MethodPost, "/api/login", http.StatusUnauthorized, time.Millisecond)
	assert.Equal(t, "warning", lastLine(t, buf)["level"])

	l.LogRequest(ctx, http.MethodGet, "/api/materials", http.StatusBadGateway, time.Millisecond)
	line := lastLine(t, buf)
	assert.Equal(t, "error", line["level"])
	assert.EqualValues(t, http.StatusBadGateway, line["status"])
}

func TestLogSecurityEvent(t *testing.T) {
	l, buf := captured(t)
	l.LogSecurityEvent(context.Background(), "login_rejected", map[string]interface{}{"reason": "username"})

	line := lastLine(t, buf)
	assert.Equal(t, "login_rejected", line["security_event"])
	assert.Equal(t, "username", line["reason"])
}

func TestTraceIDHelpers(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
	assert.NotEqual(t, NewTraceID(), NewTraceID())
}
