package material

import (
	"context"
	"time"

	"github.com/qkgalias/capstone-hub/internal/metrics"
)

// Instrumented records call counts and latency for every Store call.
type Instrumented struct {
	next    Store
	backend string
	metrics *metrics.Metrics
}

// Instrument wraps next. backend labels the metrics ("supabase", "postgres").
func Instrument(next Store, backend string, m *metrics.Metrics) Store {
	if m == nil {
		return next
	}
	return &Instrumented{next: next, backend: backend, metrics: m}
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	s.metrics.RecordStoreOp(s.backend, op, err, time.Since(start))
}

func (s *Instrumented) List(ctx context.Context, accountID string) ([]Material, error) {
	start := time.Now()
	out, err := s.next.List(ctx, accountID)
	s.observe("list", start, err)
	return out, err
}

func (s *Instrumented) Create(ctx context.Context, accountID string, d Draft) (Material, error) {
	start := time.Now()
	m, err := s.next.Create(ctx, accountID, d)
	s.observe("create", start, err)
	return m, err
}

func (s *Instrumented) Update(ctx context.Context, materialID, accountID string, f Fields) error {
	start := time.Now()
	err := s.next.Update(ctx, materialID, accountID, f)
	s.observe("update", start, err)
	return err
}

func (s *Instrumented) Delete(ctx context.Context, materialID, accountID string) error {
	start := time.Now()
	err := s.next.Delete(ctx, materialID, accountID)
	s.observe("delete", start, err)
	return err
}

func (s *Instrumented) BulkSetOrder(ctx context.Context, accountID string, updates []OrderUpdate) error {
	start := time.Now()
	err := s.next.BulkSetOrder(ctx, accountID, updates)
	s.observe("bulk_set_order", start, err)
	return err
}
