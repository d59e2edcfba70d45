// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qkgalias/capstone-hub/internal/material"
	"github.com/qkgalias/capstone-hub/internal/ordering"
	"github.com/qkgalias/capstone-hub/supabase/client"
)

// MockStore is an in-memory material.Store. Failures can be injected per
// operation and per material id.
type MockStore struct {
	rowsMu sync.RWMutex
	rows   map[string]storedMaterial

	mu        sync.Mutex
	clock     time.Time
	listErr   error
	writeErr  error
	orderErrs map[string]error
	calls     map[string]int
}

type storedMaterial struct {
	accountID string
	material.Material
}

var _ material.Store = (*MockStore)(nil)

// NewMockStore creates an empty store.
func NewMockStore() *MockStore {
	return &MockStore{
		rows:      make(map[string]storedMaterial),
		clock:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		orderErrs: make(map[string]error),
		calls:     make(map[string]int),
	}
}

// Seed inserts m for accountID as is. A zero CreatedAt is filled from the
// store clock, which advances one second per insert.
func (s *MockStore) Seed(accountID string, items ...material.Material) {
	for _, m := range items {
		if m.ID == "" {
			m.ID = GenerateID()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.tick()
		}
		s.put(storedMaterial{accountID: accountID, Material: m.Clone()})
	}
}

// Get returns the stored material with id.
func (s *MockStore) Get(id string) (material.Material, bool) {
	row, ok := s.row(id)
	return row.Material.Clone(), ok
}

// FailList makes List fail with err until cleared with nil.
func (s *MockStore) FailList(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

// FailWrites makes Create, Update and Delete fail with err.
func (s *MockStore) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// FailOrder makes the order write for id fail with err.
func (s *MockStore) FailOrder(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderErrs[id] = err
}

// Calls returns how often op was invoked.
func (s *MockStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *MockStore) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
}

func (s *MockStore) row(id string) (storedMaterial, bool) {
	s.rowsMu.RLock()
	defer s.rowsMu.RUnlock()
	row, ok := s.rows[id]
	return row, ok
}

func (s *MockStore) put(row storedMaterial) {
	s.rowsMu.Lock()
	defer s.rowsMu.Unlock()
	s.rows[row.ID] = row
}

func (s *MockStore) tick() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *MockStore) failure(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op == "list" {
		return s.listErr
	}
	return s.writeErr
}

func (s *MockStore) List(_ context.Context, accountID string) ([]material.Material, error) {
	s.record("list")
	if err := s.failure("list"); err != nil {
		return nil, material.FetchError("list", err)
	}
	out := []material.Material{}
	s.rowsMu.RLock()
	for _, row := range s.rows {
		if row.accountID == accountID {
			out = append(out, row.Material.Clone())
		}
	}
	s.rowsMu.RUnlock()
	// Map iteration is random; order by id first so equal keys stay stable.
	out = sortByID(out)
	return ordering.SortedByOrder(out), nil
}

func (s *MockStore) Create(_ context.Context, accountID string, d material.Draft) (material.Material, error) {
	s.record("create")
	if err := s.failure("create"); err != nil {
		return material.Material{}, material.WriteError("create", err)
	}
	m := material.Material{
		ID:        GenerateID(),
		Title:     d.Title,
		Category:  d.Category,
		Link:      d.Link,
		CreatedAt: s.tick(),
		SortOrder: material.IntPtr(d.SortOrder),
	}
	s.put(storedMaterial{accountID: accountID, Material: m})
	return m.Clone(), nil
}

func (s *MockStore) Update(_ context.Context, materialID, accountID string, f material.Fields) error {
	s.record("update")
	if err := s.failure("update"); err != nil {
		return material.WriteError("update", err)
	}
	row, ok := s.row(materialID)
	if !ok || row.accountID != accountID {
		return material.WriteError("update", material.ErrNotFound)
	}
	if f.Title != nil {
		row.Title = *f.Title
	}
	if f.Category != nil {
		row.Category = *f.Category
	}
	if f.Link != nil {
		row.Link = *f.Link
	}
	if f.SortOrder != nil {
		row.SortOrder = material.IntPtr(*f.SortOrder)
	}
	s.put(row)
	return nil
}

func (s *MockStore) Delete(_ context.Context, materialID, accountID string) error {
	s.record("delete")
	if err := s.failure("delete"); err != nil {
		return material.WriteError("delete", err)
	}
	row, ok := s.row(materialID)
	if !ok || row.accountID != accountID {
		return material.WriteError("delete", material.ErrNotFound)
	}
	s.rowsMu.Lock()
	delete(s.rows, materialID)
	s.rowsMu.Unlock()
	return nil
}

// BulkSetOrder applies every update it can and reports the rest, like the
// PostgREST store.
func (s *MockStore) BulkSetOrder(ctx context.Context, accountID string, updates []material.OrderUpdate) error {
	s.record("set_order")
	results := make([]error, len(updates))
	for i, u := range updates {
		s.mu.Lock()
		injected := s.orderErrs[u.ID]
		s.mu.Unlock()
		if injected != nil {
			results[i] = material.WriteError("set_order", injected)
			continue
		}
		order := u.SortOrder
		if err := s.Update(ctx, u.ID, accountID, material.Fields{SortOrder: &order}); err != nil {
			results[i] = err
		}
	}
	return material.NewBatchError(updates, results)
}

func sortByID(items []material.Material) []material.Material {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].ID < items[j-1].ID; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
	return items
}

// ErrWrongPassword is returned by MockIdentity for a bad password.
var ErrWrongPassword = errors.New("invalid login credentials")

// MockIdentity is an in-memory GoTrue. Tokens are opaque strings mapped to
// the single user.
type MockIdentity struct {
	mu       sync.Mutex
	user     client.User
	password string
	access   map[string]bool
	refresh  map[string]bool
	signIns  int
	revoked  int
}

// NewMockIdentity creates an identity service that knows one user.
func NewMockIdentity(email, password string) *MockIdentity {
	return &MockIdentity{
		user:     client.User{ID: GenerateID(), Email: email, Role: "authenticated"},
		password: password,
		access:   make(map[string]bool),
		refresh:  make(map[string]bool),
	}
}

// UserID returns the id of the user.
func (m *MockIdentity) UserID() string { return m.user.ID }

// SignIns returns the number of password sign-in attempts.
func (m *MockIdentity) SignIns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signIns
}

// Revoked returns the number of sign-outs.
func (m *MockIdentity) Revoked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked
}

func (m *MockIdentity) issue() *client.Session {
	s := &client.Session{
		AccessToken:  "at-" + GenerateID(),
		TokenType:    "bearer",
		ExpiresIn:    3600,
		RefreshToken: "rt-" + GenerateID(),
		User:         &m.user,
	}
	m.access[s.AccessToken] = true
	m.refresh[s.RefreshToken] = true
	return s
}

func (m *MockIdentity) SignInWithPassword(_ context.Context, email, password string) (*client.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signIns++
	if email != m.user.Email || password != m.password {
		return nil, ErrWrongPassword
	}
	return m.issue(), nil
}

func (m *MockIdentity) RefreshToken(_ context.Context, refreshToken string) (*client.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.refresh[refreshToken] {
		return nil, fmt.Errorf("invalid refresh token")
	}
	delete(m.refresh, refreshToken)
	return m.issue(), nil
}

func (m *MockIdentity) GetUser(_ context.Context, accessToken string) (*client.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.access[accessToken] {
		return nil, fmt.Errorf("invalid JWT")
	}
	u := m.user
	return &u, nil
}

func (m *MockIdentity) SignOut(_ context.Context, accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.access, accessToken)
	m.revoked++
	return nil
}

// GenerateID generates a new UUID string.
func GenerateID() string {
	return uuid.NewString()
}
