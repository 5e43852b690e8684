package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/pharma-listing-crawler/internal/medicine"
)

// MinAnchorCandidates is the anchor-scan yield below which container-first
// discovery also runs.
const MinAnchorCandidates = 5

const fallbackBlocks = `.product-card, .medicine-card, .item, [class*="card"], [class*="product"], [class*="medicine"]`

var containerKeywords = []string{"product", "medicine", "card", "item"}

// Discoverer parses listing pages into ordered, deduplicated candidates.
type Discoverer struct {
	base   *url.URL
	fields *FieldExtractor
	logger *zap.Logger
}

// NewDiscoverer resolves hrefs against baseURL.
func NewDiscoverer(baseURL string, fields *FieldExtractor, logger *zap.Logger) (*Discoverer, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if fields == nil {
		fields = NewFieldExtractor()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{base: base, fields: fields, logger: logger}, nil
}

type anchorHit struct {
	url    string
	anchor *goquery.Selection
}

// Discover returns candidates in document order, first occurrence of each
// canonical URL wins.
func (d *Discoverer) Discover(content []byte) ([]medicine.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	seen := make(map[string]struct{})
	var hits []anchorHit
	add := func(anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		abs, err := medicine.Resolve(d.base, href)
		if err != nil {
			d.logger.Debug("skipping unresolvable href", zap.String("href", href), zap.Error(err))
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		hits = append(hits, anchorHit{url: abs, anchor: anchor})
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if href, _ := a.Attr("href"); medicine.IsDetailHref(href) {
			add(a)
		}
	})

	if len(hits) < MinAnchorCandidates {
		before := len(hits)
		doc.Find(fallbackBlocks).Each(func(_ int, block *goquery.Selection) {
			if a := blockAnchor(block); a.Length() > 0 {
				add(a)
			}
		})
		d.logger.Debug("container-first discovery",
			zap.Int("anchor_hits", before),
			zap.Int("added", len(hits)-before),
		)
	}

	candidates := make([]medicine.Candidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, medicine.Candidate{
			URL:           hit.url,
			ListingFields: d.fields.Extract(ResolveContainer(hit.anchor)),
		})
	}
	return candidates, nil
}

// blockAnchor prefers a detail link and falls back to any /medicine/ link.
func blockAnchor(block *goquery.Selection) *goquery.Selection {
	links := block.Find(`a[href*="` + medicine.DetailSegment + `"]`)
	detail := links.FilterFunction(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		return medicine.IsDetailHref(href)
	})
	if detail.Length() > 0 {
		return detail.First()
	}
	return links.First()
}

// ResolveContainer picks the smallest enclosing block for an anchor.
func ResolveContainer(anchor *goquery.Selection) *goquery.Selection {
	if c := anchor.ParentsFiltered(".card").First(); c.Length() > 0 {
		return c
	}
	if c := anchor.ParentsFiltered(".card-body").First(); c.Length() > 0 {
		return c
	}
	if c := anchor.Parents().FilterFunction(looksLikeListing).First(); c.Length() > 0 {
		return c
	}
	if c := anchor.Parents().FilterFunction(hasContainerKeyword).First(); c.Length() > 0 {
		return c
	}
	if p := anchor.Parent(); p.Length() > 0 {
		return p
	}
	return anchor
}

func looksLikeListing(_ int, s *goquery.Selection) bool {
	if s.Is("html, body") {
		return false
	}
	text := flatText(s)
	return strings.Contains(text, currencyMarker) &&
		(containsFold(text, packSizeMarker) || containsFold(text, addToCart))
}

func hasContainerKeyword(_ int, s *goquery.Selection) bool {
	class := strings.ToLower(s.AttrOr("class", ""))
	if class == "" {
		return false
	}
	for _, kw := range containerKeywords {
		if strings.Contains(class, kw) {
			return true
		}
	}
	return false
}
