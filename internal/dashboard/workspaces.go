package dashboard

import (
	"context"
	"errors"
	"sync"

	svcerrors "github.com/qkgalias/capstone-hub/internal/errors"
	"github.com/qkgalias/capstone-hub/internal/logging"
	"github.com/qkgalias/capstone-hub/internal/material"
	"github.com/qkgalias/capstone-hub/internal/metrics"
	"github.com/qkgalias/capstone-hub/internal/ordering"
	"github.com/qkgalias/capstone-hub/internal/session"
)

// StoreFactory returns the store a session acts through.
type StoreFactory func(*session.Session) material.Store

// Options configures new boards.
type Options struct {
	Catalog    *ordering.Catalog
	MaxColumns int
	Metrics    *metrics.Metrics
	Logger     *logging.Logger
}

// Workspaces holds one board per verified account.
type Workspaces struct {
	stores StoreFactory
	opts   Options

	mu     sync.Mutex
	boards map[string]*Board
}

// NewWorkspaces creates an empty set of boards.
func NewWorkspaces(stores StoreFactory, opts Options) *Workspaces {
	if opts.Catalog == nil {
		opts.Catalog = ordering.DefaultCatalog()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewDiscard()
	}
	return &Workspaces{stores: stores, opts: opts, boards: make(map[string]*Board)}
}

// Open returns the session's board, creating and loading it on first use.
// An existing board is rebound to the session's store so a refreshed token
// takes effect. A failed initial load is reported on the board's status.
func (w *Workspaces) Open(ctx context.Context, s *session.Session) (*Board, error) {
	if s == nil || s.AccountID == "" {
		return nil, errors.New("open board: no session")
	}
	store := w.stores(s)
	if store == nil {
		return nil, svcerrors.Configuration(errors.New("material store is not configured"))
	}

	w.mu.Lock()
	b, ok := w.boards[s.AccountID]
	if !ok {
		b = &Board{
			accountID:  s.AccountID,
			catalog:    w.opts.Catalog,
			maxColumns: w.opts.MaxColumns,
			metrics:    w.opts.Metrics,
			logger:     w.opts.Logger,
			store:      store,
		}
		w.boards[s.AccountID] = b
	}
	n := len(w.boards)
	w.mu.Unlock()

	if ok {
		b.setStore(store)
		return b, nil
	}

	w.report(n)
	_ = b.Refresh(ctx)
	return b, nil
}

// Close drops the account's board.
func (w *Workspaces) Close(accountID string) {
	w.mu.Lock()
	delete(w.boards, accountID)
	n := len(w.boards)
	w.mu.Unlock()
	w.report(n)
}

// Len returns the number of open boards.
func (w *Workspaces) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.boards)
}

// Catalog returns the category catalog boards use.
func (w *Workspaces) Catalog() *ordering.Catalog { return w.opts.Catalog }

func (w *Workspaces) report(n int) {
	if w.opts.Metrics != nil {
		w.opts.Metrics.SetOpenBoards(n)
	}
}
