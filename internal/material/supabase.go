package material

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/qkgalias/capstone-hub/supabase/client"
)

const (
	table   = "materials"
	columns = "id,title,type,link,created_at,sort_order"

	// DefaultBatchConcurrency bounds concurrent order writes.
	DefaultBatchConcurrency = 8
)

// SupabaseStore reads and writes materials through PostgREST. Each call is
// filtered by user_id on top of the row level security the access token
// carries.
//
// BulkSetOrder is not atomic: writes for different ids run concurrently and
// a failure leaves the others applied.
type SupabaseStore struct {
	client      *client.Client
	concurrency int
}

// NewSupabaseStore creates a store over c.
func NewSupabaseStore(c *client.Client) *SupabaseStore {
	return &SupabaseStore{client: c, concurrency: DefaultBatchConcurrency}
}

// WithAccessToken returns a store that acts as the signed-in user.
func (s *SupabaseStore) WithAccessToken(token string) *SupabaseStore {
	cp := *s
	cp.client = s.client.WithAccessToken(token)
	return &cp
}

// WithConcurrency sets the order-write concurrency bound.
func (s *SupabaseStore) WithConcurrency(n int) *SupabaseStore {
	cp := *s
	if n < 1 {
		n = 1
	}
	cp.concurrency = n
	return &cp
}

type insertRow struct {
	Title     string `json:"title"`
	Category  string `json:"type"`
	Link      string `json:"link"`
	SortOrder int    `json:"sort_order"`
	UserID    string `json:"user_id"`
}

// List implements Store.
func (s *SupabaseStore) List(ctx context.Context, accountID string) ([]Material, error) {
	resp, err := s.client.From(table).
		Select(columns).
		Eq("user_id", accountID).
		OrderNullsLast("sort_order", true).
		Order("created_at", false).
		Execute(ctx)
	if err != nil {
		return nil, FetchError("list", err)
	}
	if err := resp.Err(); err != nil {
		return nil, FetchError("list", err)
	}

	var out []Material
	if err := resp.JSON(&out); err != nil {
		return nil, FetchError("list", fmt.Errorf("decode materials: %w", err))
	}
	if out == nil {
		out = []Material{}
	}
	return out, nil
}

// Create implements Store.
func (s *SupabaseStore) Create(ctx context.Context, accountID string, d Draft) (Material, error) {
	resp, err := s.client.From(table).
		Select(columns).
		ExecuteInsert(ctx, insertRow{
			Title:     d.Title,
			Category:  d.Category,
			Link:      d.Link,
			SortOrder: d.SortOrder,
			UserID:    accountID,
		})
	if err != nil {
		return Material{}, WriteError("create", err)
	}
	if err := resp.Err(); err != nil {
		return Material{}, WriteError("create", err)
	}

	var rows []Material
	if err := resp.JSON(&rows); err != nil {
		return Material{}, WriteError("create", fmt.Errorf("decode material: %w", err))
	}
	if len(rows) == 0 {
		return Material{}, WriteError("create", fmt.Errorf("insert returned no rows"))
	}
	return rows[0], nil
}

// Update implements Store.
func (s *SupabaseStore) Update(ctx context.Context, materialID, accountID string, f Fields) error {
	if f.Empty() {
		return nil
	}
	return s.patch(ctx, "update", materialID, accountID, f)
}

// Delete implements Store.
func (s *SupabaseStore) Delete(ctx context.Context, materialID, accountID string) error {
	resp, err := s.client.From(table).
		Select("id").
		Eq("id", materialID).
		Eq("user_id", accountID).
		ExecuteDelete(ctx)
	if err != nil {
		return WriteError("delete", err)
	}
	if err := resp.Err(); err != nil {
		return WriteError("delete", err)
	}
	if resp.Rows() == 0 {
		return WriteError("delete", ErrNotFound)
	}
	return nil
}

// BulkSetOrder implements Store. Every update is attempted; failures are
// collected into a *BatchError.
func (s *SupabaseStore) BulkSetOrder(ctx context.Context, accountID string, updates []OrderUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	results := make([]error, len(updates))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, u := range updates {
		g.Go(func() error {
			results[i] = s.patch(ctx, "set_order", u.ID, accountID, Fields{SortOrder: IntPtr(u.SortOrder)})
			return nil
		})
	}
	_ = g.Wait()

	return NewBatchError(updates, results)
}

func (s *SupabaseStore) patch(ctx context.Context, op, materialID, accountID string, f Fields) error {
	resp, err := s.client.From(table).
		Select("id").
		Eq("id", materialID).
		Eq("user_id", accountID).
		ExecuteUpdate(ctx, f)
	if err != nil {
		return WriteError(op, err)
	}
	if err := resp.Err(); err != nil {
		return WriteError(op, err)
	}
	if resp.Rows() == 0 {
		return WriteError(op, ErrNotFound)
	}
	return nil
}
