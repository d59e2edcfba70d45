// Package material defines the material record and the store that persists it.
package material

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Material is one stored link.
type Material struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Category  string    `json:"type" db:"type"`
	Link      string    `json:"link" db:"link"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	// SortOrder is nil until the material has been placed by a drop or
	// created with an explicit order.
	SortOrder *int `json:"sort_order" db:"sort_order"`
}

// Ordered reports whether m has a sort order.
func (m Material) Ordered() bool {
	return m.SortOrder != nil
}

// Order returns the sort order, or fallback when unordered.
func (m Material) Order(fallback int) int {
	if m.SortOrder == nil {
		return fallback
	}
	return *m.SortOrder
}

// Clone returns a copy that shares no pointers with m.
func (m Material) Clone() Material {
	if m.SortOrder != nil {
		o := *m.SortOrder
		m.SortOrder = &o
	}
	return m
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// Draft is a material to create.
type Draft struct {
	Title     string `json:"title"`
	Category  string `json:"type"`
	Link      string `json:"link"`
	SortOrder int    `json:"sort_order"`
}

// Fields is a partial update; nil fields are left unchanged.
type Fields struct {
	Title     *string `json:"title,omitempty"`
	Category  *string `json:"type,omitempty"`
	Link      *string `json:"link,omitempty"`
	SortOrder *int    `json:"sort_order,omitempty"`
}

// Empty reports whether f changes nothing.
func (f Fields) Empty() bool {
	return f.Title == nil && f.Category == nil && f.Link == nil && f.SortOrder == nil
}

// OrderUpdate assigns a new sort order to one material.
type OrderUpdate struct {
	ID        string `json:"id"`
	SortOrder int    `json:"sort_order"`
}

// Store persists materials scoped to one account.
type Store interface {
	// List returns the account's materials ordered by sort_order ascending
	// with unordered rows last, then created_at descending.
	List(ctx context.Context, accountID string) ([]Material, error)
	Create(ctx context.Context, accountID string, d Draft) (Material, error)
	Update(ctx context.Context, materialID, accountID string, f Fields) error
	Delete(ctx context.Context, materialID, accountID string) error
	// BulkSetOrder writes every update. Implementations document whether a
	// failure is all-or-nothing or partial.
	BulkSetOrder(ctx context.Context, accountID string, updates []OrderUpdate) error
}

// ErrNotFound means the material does not exist within the account.
var ErrNotFound = errors.New("material not found")

// Kind classifies a store failure.
type Kind string

const (
	KindFetch Kind = "fetch"
	KindWrite Kind = "write"
)

// StoreError is a failed store operation.
type StoreError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// UserMessage is the message shown on the board status line.
func (e *StoreError) UserMessage() string {
	type messager interface{ UserMessage() string }
	var m messager
	if errors.As(e.Err, &m) {
		if msg := m.UserMessage(); msg != "" {
			return msg
		}
	}
	if errors.Is(e.Err, ErrNotFound) {
		return "Material not found."
	}
	return e.Err.Error()
}

// FetchError wraps a failed read.
func FetchError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Kind: KindFetch, Err: err}
}

// WriteError wraps a failed write.
func WriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Kind: KindWrite, Err: err}
}

// IsKind reports whether err is a StoreError of kind k.
func IsKind(err error, k Kind) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == k
}

// BatchError aggregates the failures of a bulk order write. Its message is
// the first failure in update order.
type BatchError struct {
	Failed map[string]error
	first  string
	total  int
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d of %d order updates failed: %v", len(e.Failed), e.total, e.Failed[e.first])
}

// Unwrap returns the first failure.
func (e *BatchError) Unwrap() error {
	return e.Failed[e.first]
}

// UserMessage returns the first failure's message.
func (e *BatchError) UserMessage() string {
	err := e.Failed[e.first]
	type messager interface{ UserMessage() string }
	var m messager
	if errors.As(err, &m) {
		return m.UserMessage()
	}
	return err.Error()
}

// NewBatchError builds a BatchError from per-index results, or returns nil
// when every update succeeded.
func NewBatchError(updates []OrderUpdate, results []error) error {
	be := &BatchError{Failed: map[string]error{}, total: len(updates)}
	for i, err := range results {
		if err == nil {
			continue
		}
		if len(be.Failed) == 0 {
			be.first = updates[i].ID
		}
		be.Failed[updates[i].ID] = err
	}
	if len(be.Failed) == 0 {
		return nil
	}
	return be
}
