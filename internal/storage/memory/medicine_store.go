package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/pharma-listing-crawler/internal/medicine"
)

type storedRecord struct {
	id        int64
	record    medicine.Record
	createdAt time.Time
}

// MedicineStore provides an in-memory medicine.Store for development/testing.
type MedicineStore struct {
	mu      sync.RWMutex
	records map[string]storedRecord
	nextID  int64
	now     func() time.Time
}

// NewMedicineStore constructs an empty MedicineStore.
func NewMedicineStore() *MedicineStore {
	return &MedicineStore{
		records: make(map[string]storedRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// EnsureSchema is a no-op.
func (s *MedicineStore) EnsureSchema(context.Context) error { return nil }

// Close is a no-op.
func (s *MedicineStore) Close() {}

// Exists reports whether externalID has been inserted.
func (s *MedicineStore) Exists(_ context.Context, externalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[externalID]
	return ok, nil
}

// Insert stores record once and assigns it the next identity.
func (s *MedicineStore) Insert(_ context.Context, record medicine.Record) (int64, error) {
	if record.ExternalID == "" {
		return 0, fmt.Errorf("external id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ExternalID]; ok {
		return 0, medicine.ErrDuplicate
	}
	s.nextID++
	s.records[record.ExternalID] = storedRecord{id: s.nextID, record: record, createdAt: s.now()}
	return s.nextID, nil
}

// UpdateImagePath sets the image filename of an existing record.
func (s *MedicineStore) UpdateImagePath(_ context.Context, externalID, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[externalID]
	if !ok {
		return fmt.Errorf("update image path for %s: %w", externalID, medicine.ErrNotFound)
	}
	stored.record.ImagePath = &filename
	s.records[externalID] = stored
	return nil
}

// Get returns a copy of the record stored under externalID.
func (s *MedicineStore) Get(externalID string) (medicine.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.records[externalID]
	return stored.record, ok
}

// Statistics summarizes the stored records.
func (s *MedicineStore) Statistics(context.Context) (medicine.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats medicine.Statistics
	for _, stored := range s.records {
		stats.Total++
		rec := stored.record
		if rec.ImagePath != nil {
			stats.WithImages++
		}
		if rec.GenericName != nil {
			stats.WithGenericNames++
		}
		if rec.ListingPrice != nil {
			stats.WithListingPrices++
		}
		if rec.DetailPrice != nil {
			stats.WithDetailPrices++
		}
		created := stored.createdAt
		if stats.FirstRecord == nil || created.Before(*stats.FirstRecord) {
			stats.FirstRecord = &created
		}
		if stats.LastRecord == nil || created.After(*stats.LastRecord) {
			last := created
			stats.LastRecord = &last
		}
	}
	return stats, nil
}
