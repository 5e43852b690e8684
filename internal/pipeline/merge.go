package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/pharma-listing-crawler/internal/medicine"
)

// Merge combines listing and detail fields with fixed provenance: listing
// fields come from the candidate, detail fields from the detail page and the
// drug link is the candidate's detail URL. The image URL is returned
// separately; ImagePath stays nil until an image is stored.
func Merge(externalID string, c medicine.Candidate, d medicine.Detail) (medicine.Record, string) {
	record := medicine.Record{
		ExternalID:           externalID,
		CompleteName:         d.CompleteName,
		BrandName:            c.BrandName,
		GenericName:          d.GenericName,
		PackSize:             c.PackSize,
		ListingPrice:         c.ListingPrice,
		ListingOriginalPrice: c.ListingOriginalPrice,
		DetailPrice:          d.DetailPrice,
		DetailOriginalPrice:  d.DetailOriginalPrice,
		GenericRefLink:       d.GenericRefLink,
		DrugExternalLink:     c.URL,
	}
	return record, medicine.Deref(d.ImageURL)
}

// ExistenceChecker is the part of the store the gate needs.
type ExistenceChecker interface {
	Exists(ctx context.Context, externalID string) (bool, error)
}

// DedupGate admits only external ids the store has not seen.
type DedupGate struct {
	store  ExistenceChecker
	logger *zap.Logger
}

// NewDedupGate builds a gate over store.
func NewDedupGate(store ExistenceChecker, logger *zap.Logger) *DedupGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DedupGate{store: store, logger: logger}
}

// Admit reports whether externalID should be processed.
func (g *DedupGate) Admit(ctx context.Context, externalID string) (bool, error) {
	exists, err := g.store.Exists(ctx, externalID)
	if err != nil {
		return false, fmt.Errorf("check existence of %s: %w", externalID, err)
	}
	if exists {
		g.logger.Info("medicine already exists", zap.String("external_id", externalID))
		return false, nil
	}
	return true, nil
}
