package material

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/qkgalias/capstone-hub/internal/metrics"
	"github.com/qkgalias/capstone-hub/supabase/client"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

func newStore(t *testing.T, h http.HandlerFunc) *SupabaseStore {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := client.New(client.Config{URL: srv.URL, APIKey: "anon", HTTPClient: srv.Client()})
	require.NoError(t, err)
	return NewSupabaseStore(c).WithAccessToken("user-token")
}

func TestSupabaseStore_List(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/rest/v1/materials", r.URL.Path)
		assert.Equal(t, "id,title,type,link,created_at,sort_order", q.Get("select"))
		assert.Equal(t, "eq.acct-1", q.Get("user_id"))
		assert.Equal(t, "sort_order.asc.nullslast,created_at.desc", q.Get("order"))
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[
			{"id":"a","title":"Spec","type":"Documentation","link":"https://x/a","created_at":"2024-05-01T10:00:00.123456+00:00","sort_order":0},
			{"id":"b","title":"Repo","type":"Github Repository","link":"https://x/b","created_at":"2024-05-02T10:00:00+00:00","sort_order":null}
		]`))
	})

	got, err := s.List(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Documentation", got[0].Category)
	require.NotNil(t, got[0].SortOrder)
	assert.Equal(t, 0, *got[0].SortOrder)
	assert.Nil(t, got[1].SortOrder)
	assert.Equal(t, 2024, got[1].CreatedAt.Year())
}

func TestSupabaseStore_ListEmptyAndFailure(t *testing.T) {
	var fail atomic.Bool
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"PGRST301","message":"JWT expired"}`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	got, err := s.List(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	fail.Store(true)
	_, err = s.List(context.Background(), "acct-1")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindFetch))
	var se *StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "JWT expired", se.UserMessage())
}

func TestSupabaseStore_Create(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var row map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&row))
		assert.Equal(t, "acct-1", row["user_id"])
		assert.Equal(t, "Docs", row["type"])
		assert.EqualValues(t, 0, row["sort_order"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":"new","title":"Spec","type":"Docs","link":"https://x","created_at":"2024-05-01T10:00:00Z","sort_order":0}]`))
	})

	m, err := s.Create(context.Background(), "acct-1", Draft{Title: "Spec", Category: "Docs", Link: "https://x"})
	require.NoError(t, err)
	assert.Equal(t, "new", m.ID)
}

func TestSupabaseStore_UpdateScopedAndNotFound(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "eq.acct-1", q.Get("user_id"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]interface{}{"title": "New"}, body, "only set fields are sent")
		if q.Get("id") == "eq.missing" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":"m1"}]`))
	})

	title := "New"
	require.NoError(t, s.Update(context.Background(), "m1", "acct-1", Fields{Title: &title}))

	err := s.Update(context.Background(), "missing", "acct-1", Fields{Title: &title})
	assert.True(t, IsKind(err, KindWrite))
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Update(context.Background(), "m1", "acct-1", Fields{}), "empty update is a no-op")
}

func TestSupabaseStore_Delete(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "eq.acct-1", r.URL.Query().Get("user_id"))
		_, _ = w.Write([]byte(`[{"id":"m1"}]`))
	})
	require.NoError(t, s.Delete(context.Background(), "m1", "acct-1"))
}

func TestSupabaseStore_BulkSetOrderAttemptsEveryUpdate(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]float64{}
	var inFlight, maxInFlight int32

	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			prev := atomic.LoadInt32(&maxInFlight)
			if cur <= prev || atomic.CompareAndSwapInt32(&maxInFlight, prev, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)

		id := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")
		var body map[string]float64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		seen[id] = body["sort_order"]
		mu.Unlock()

		if id == "b" || id == "d" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"message":"denied ` + id + `"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":"` + id + `"}]`))
	})
	s = s.WithConcurrency(2)

	updates := []OrderUpdate{{"a", 0}, {"b", 1}, {"c", 2}, {"d", 3}, {"e", 4}}
	err := s.BulkSetOrder(context.Background(), "acct-1", updates)
	require.Error(t, err)

	var be *BatchError
	require.True(t, errors.As(err, &be))
	assert.Len(t, be.Failed, 2)
	assert.Contains(t, be.Failed, "b")
	assert.Contains(t, be.Failed, "d")
	assert.Equal(t, "denied b", be.UserMessage(), "first failure in update order")

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 5, "no short-circuit after a failure")
	assert.Equal(t, float64(4), seen["e"])
	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(2))
}

func TestSupabaseStore_BulkSetOrderEmpty(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	assert.NoError(t, s.BulkSetOrder(context.Background(), "acct-1", nil))
}

func TestNewBatchError(t *testing.T) {
	updates := []OrderUpdate{{"a", 0}, {"b", 1}}
	assert.NoError(t, NewBatchError(updates, []error{nil, nil}))

	err := NewBatchError(updates, []error{nil, errors.New("boom")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 order updates failed")
	assert.Equal(t, "boom", errors.Unwrap(err).Error())
}

func TestInstrument(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	assert.Same(t, Store(s), Instrument(s, "supabase", nil))

	wrapped := Instrument(s, "supabase", metrics.New())
	_, err := wrapped.List(context.Background(), "acct-1")
	require.NoError(t, err)
}
