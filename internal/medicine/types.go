// Package medicine defines the domain types shared across the crawl pipeline.
package medicine

import "time"

// Candidate is a listing-page reference to one product with whatever fields the
// listing container yielded. The URL is absolute and canonical.
type Candidate struct {
	URL string
	ListingFields
}

// ListingFields holds the optional values extracted from a listing container.
type ListingFields struct {
	BrandName            *string
	PackSize             *string
	ListingPrice         *float64
	ListingOriginalPrice *float64
}

// Detail captures everything the detail page contributes to a record.
type Detail struct {
	CompleteName        *string
	GenericName         *string
	GenericRefLink      *string
	DetailPrice         *float64
	DetailOriginalPrice *float64
	ImageURL            *string
}

// Record is the canonical merged medicine entity persisted once per external id.
type Record struct {
	ExternalID           string   `db:"external_id" json:"external_id"`
	CompleteName         *string  `db:"complete_name" json:"complete_name,omitempty"`
	BrandName            *string  `db:"brand_name" json:"brand_name,omitempty"`
	GenericName          *string  `db:"generic_name" json:"generic_name,omitempty"`
	PackSize             *string  `db:"pack_size" json:"pack_size,omitempty"`
	ListingPrice         *float64 `db:"listing_price" json:"listing_price,omitempty"`
	ListingOriginalPrice *float64 `db:"listing_original_price" json:"listing_original_price,omitempty"`
	DetailPrice          *float64 `db:"detail_price" json:"detail_price,omitempty"`
	DetailOriginalPrice  *float64 `db:"detail_original_price" json:"detail_original_price,omitempty"`
	GenericRefLink       *string  `db:"generic_ref_link" json:"generic_ref_link,omitempty"`
	DrugExternalLink     string   `db:"drug_external_link" json:"drug_external_link"`
	ImagePath            *string  `db:"image_path" json:"image_path,omitempty"`
}

// FetchOutcome is the transient result of a retried fetch.
type FetchOutcome struct {
	Success      bool
	Content      []byte
	AttemptsUsed int
}

// Statistics summarizes the persisted store.
type Statistics struct {
	Total             int
	WithImages        int
	WithGenericNames  int
	WithListingPrices int
	WithDetailPrices  int
	FirstRecord       *time.Time
	LastRecord        *time.Time
}

// ImageStats summarizes images held by an image backend.
type ImageStats struct {
	Count     int
	TotalSize int64
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// FloatPtr returns a pointer to f.
func FloatPtr(f float64) *float64 {
	return &f
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
