// Package dashboard holds the per-account material boards. A Board owns the
// only mutable copy of its account's list; handlers get copies.
package dashboard

import (
	"context"
	"fmt"
	"sync"

	svcerrors "github.com/qkgalias/capstone-hub/internal/errors"
	"github.com/qkgalias/capstone-hub/internal/logging"
	"github.com/qkgalias/capstone-hub/internal/material"
	"github.com/qkgalias/capstone-hub/internal/metrics"
	"github.com/qkgalias/capstone-hub/internal/ordering"
)

// ErrConfirmationRequired is returned by Delete when the caller has not
// confirmed. No request is issued.
var ErrConfirmationRequired = svcerrors.ConfirmationRequired("Deleting a material requires confirmation.")

// Board is one account's materials plus the status line.
type Board struct {
	accountID  string
	catalog    *ordering.Catalog
	maxColumns int
	metrics    *metrics.Metrics
	logger     *logging.Logger

	mu       sync.Mutex
	store    material.Store
	items    []material.Material
	status   string
	fetched  bool
	diverged bool
}

// View is a snapshot of a board.
type View struct {
	ordering.Layout
	Status   string `json:"status,omitempty"`
	Loading  bool   `json:"loading"`
	Empty    bool   `json:"empty"`
	Diverged bool   `json:"diverged"`
}

// DropResult describes a drop.
type DropResult struct {
	// Applied is false for a self drop or a stale id.
	Applied bool                   `json:"applied"`
	Updates []material.OrderUpdate `json:"updates"`
	Status  string                 `json:"status,omitempty"`
}

// AccountID returns the board's account.
func (b *Board) AccountID() string { return b.accountID }

func (b *Board) setStore(s material.Store) {
	b.mu.Lock()
	b.store = s
	b.mu.Unlock()
}

func (b *Board) snapshotStore() material.Store {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store
}

// Status returns the status line.
func (b *Board) Status() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Board) setStatus(msg string) {
	b.mu.Lock()
	b.status = msg
	b.mu.Unlock()
}

// Materials returns a copy of the list in store order.
func (b *Board) Materials() []material.Material {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ordering.SortedByOrder(b.items)
}

// Refresh refetches the list. On failure the previous list is kept and the
// status line carries the error.
func (b *Board) Refresh(ctx context.Context) error {
	items, err := b.snapshotStore().List(ctx, b.accountID)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetched = true
	if err != nil {
		se := svcerrors.Fetch(err)
		b.status = se.Message
		b.logger.WithContext(ctx).WithError(err).Warn("fetch materials failed")
		return se
	}
	b.items = items
	b.diverged = false
	return nil
}

// Add validates in and creates it at the end of its category.
func (b *Board) Add(ctx context.Context, in Input) (material.Material, error) {
	b.setStatus("")
	in, err := in.normalize(b.catalog)
	if err != nil {
		return material.Material{}, err
	}

	b.mu.Lock()
	next := ordering.NextOrder(b.items, b.catalog, in.Category)
	store := b.store
	b.mu.Unlock()

	m, err := store.Create(ctx, b.accountID, material.Draft{
		Title:     in.Title,
		Category:  in.Category,
		Link:      in.Link,
		SortOrder: next,
	})
	if err != nil {
		return material.Material{}, b.writeFailed(ctx, "create", err)
	}
	_ = b.Refresh(ctx)
	return m, nil
}

// Edit validates in and updates id. A category change moves the material to
// the end of its new category.
func (b *Board) Edit(ctx context.Context, id string, in Input) error {
	b.setStatus("")
	in, err := in.normalize(b.catalog)
	if err != nil {
		return err
	}

	current, ok, err := b.lookup(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return svcerrors.NotFound("Material")
	}

	b.mu.Lock()
	fields := material.Fields{Title: &in.Title, Category: &in.Category, Link: &in.Link}
	if b.catalog.Normalize(current.Category) != in.Category {
		fields.SortOrder = material.IntPtr(ordering.NextOrder(b.items, b.catalog, in.Category))
	}
	store := b.store
	b.mu.Unlock()

	if err := store.Update(ctx, id, b.accountID, fields); err != nil {
		return b.writeFailed(ctx, "update", err)
	}
	_ = b.Refresh(ctx)
	return nil
}

// Delete removes id. Without confirmation it returns ErrConfirmationRequired
// carrying the prompt and touches nothing.
func (b *Board) Delete(ctx context.Context, id string, confirmed bool) error {
	current, ok, err := b.lookup(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return svcerrors.NotFound("Material")
	}
	if !confirmed {
		return ErrConfirmationRequired.WithDetails("prompt", fmt.Sprintf("Delete %q? This cannot be undone.", current.Title))
	}

	if err := b.snapshotStore().Delete(ctx, id, b.accountID); err != nil {
		return b.writeFailed(ctx, "delete", err)
	}
	_ = b.Refresh(ctx)
	return nil
}

// Drop moves sourceID to targetID's position within category. The new
// orders are applied locally before they are persisted and are not rolled
// back when persistence fails; the board is then marked diverged and the
// first failure becomes the status.
func (b *Board) Drop(ctx context.Context, sourceID, targetID, category string) DropResult {
	b.mu.Lock()
	updates, ok := ordering.Drop(b.items, b.catalog, sourceID, targetID, category)
	if !ok {
		b.mu.Unlock()
		b.recordDrop(metrics.DropNoop, 0)
		return DropResult{Updates: []material.OrderUpdate{}}
	}
	b.items = ordering.ApplyOrders(b.items, updates)
	store := b.store
	b.mu.Unlock()

	res := DropResult{Applied: true, Updates: updates}
	if len(updates) == 0 {
		b.recordDrop(metrics.DropPersisted, 0)
		return res
	}

	if err := store.BulkSetOrder(ctx, b.accountID, updates); err != nil {
		msg := svcerrors.Write(err).Message
		b.mu.Lock()
		b.status = msg
		b.diverged = true
		b.mu.Unlock()

		b.logger.WithContext(ctx).WithError(err).WithField("updates", len(updates)).Warn("persist drop failed")
		b.recordDrop(metrics.DropFailed, len(updates))
		res.Status = msg
		return res
	}
	b.recordDrop(metrics.DropPersisted, len(updates))
	return res
}

// View returns the layout and status. A diverged board is refetched first.
func (b *Board) View(ctx context.Context) View {
	b.mu.Lock()
	diverged := b.diverged
	b.mu.Unlock()
	if diverged {
		_ = b.Refresh(ctx)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return View{
		Layout:   b.catalog.Layout(b.items, b.maxColumns),
		Status:   b.status,
		Loading:  !b.fetched,
		Empty:    b.fetched && len(b.items) == 0,
		Diverged: b.diverged,
	}
}

// lookup finds id on the board, refetching once when it is not there so
// materials added from another client can be edited.
func (b *Board) lookup(ctx context.Context, id string) (material.Material, bool, error) {
	b.mu.Lock()
	m, ok := b.find(id)
	b.mu.Unlock()
	if ok {
		return m, true, nil
	}

	if err := b.Refresh(ctx); err != nil {
		return material.Material{}, false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok = b.find(id)
	return m, ok, nil
}

func (b *Board) find(id string) (material.Material, bool) {
	for _, m := range b.items {
		if m.ID == id {
			return m.Clone(), true
		}
	}
	return material.Material{}, false
}

func (b *Board) writeFailed(ctx context.Context, op string, err error) error {
	se := svcerrors.Write(err)
	b.setStatus(se.Message)
	b.logger.WithContext(ctx).WithError(err).WithField("op", op).Warn("write material failed")
	return se
}

func (b *Board) recordDrop(outcome string, updates int) {
	if b.metrics != nil {
		b.metrics.RecordDrop(outcome, updates)
	}
}
