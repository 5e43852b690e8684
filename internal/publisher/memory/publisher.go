// Package memory contains an in-memory publisher for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/pharma-listing-crawler/internal/medicine"
)

// Publisher stores announced records for inspection.
type Publisher struct {
	mu      sync.RWMutex
	records []medicine.Record
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// PublishCreated records the announcement.
func (p *Publisher) PublishCreated(_ context.Context, record medicine.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, record)
	return nil
}

// Records returns the announced records in publish order.
func (p *Publisher) Records() []medicine.Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]medicine.Record, len(p.records))
	copy(out, p.records)
	return out
}
