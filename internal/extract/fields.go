// Package extract turns listing and detail markup into medicine fields using
// ordered chains of structural and textual strategies.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/pharma-listing-crawler/internal/medicine"
)

// Strategy extracts one value from a selection. The bool reports success.
type Strategy[T any] func(sel *goquery.Selection) (T, bool)

// FirstOf runs strategies in order and returns the first success.
func FirstOf[T any](sel *goquery.Selection, strategies []Strategy[T]) (T, bool) {
	for _, s := range strategies {
		if v, ok := s(sel); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

var (
	brandCharset      = regexp.MustCompile(`^[A-Za-z\s\-.&]+$`)
	packMarkerPattern = regexp.MustCompile(`(?i)Pack\s+Size`)
	trailingRun       = regexp.MustCompile(`([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\s*$`)
	runBeforeMarker   = regexp.MustCompile(`([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\s*(?:Pack|Rs|Add to Cart)`)
	runBeforeCompany  = regexp.MustCompile(`([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\s*(?:Pharmaceuticals|Pharma|Laboratories|Labs|Pakistan|Limited|Ltd|Health)\b`)

	brandSuffixes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\s+(Health|Limited|Pharma|Laboratories?|Ltd|Inc|Corp|Company|International|Industries?|Group|Enterprises?)$`),
		regexp.MustCompile(`(?i)\s+(Pakistan|Pvt|Private|Public|Co|Corporation)$`),
		regexp.MustCompile(`(?i)\s+(Pharmaceuticals?|Medicines?|Drugs?|Products?)$`),
		regexp.MustCompile(`(?i)\s+(Manufacturing|Trading|Marketing|Distribution)$`),
	}

	packAfterMarker = []*regexp.Regexp{
		regexp.MustCompile(`(?i:Pack\s+Size):\s*(.*?)\s*(?:Rs\s*\d|$)`),
		regexp.MustCompile(`(?i:Pack\s+Size):\s*([^,]+)`),
		regexp.MustCompile(`(\d+x\d+'s)`),
		regexp.MustCompile(`(\d+\s[A-Za-z]+)`),
	}
)

// Selector lists for price lookups, in priority order.
var (
	ListingPriceSelectors = []string{
		".price", ".current-price", ".discounted-price", ".sale-price",
		`span[class*="price"]`, `div[class*="price"]`,
	}
	ListingOriginalSelectors = []string{
		".original-price", ".old-price", ".strike-price",
		`span[class*="original"]`, `div[class*="original"]`,
	}
)

// FieldExtractor pulls brand, pack size and price pair out of a listing container.
type FieldExtractor struct {
	brand []Strategy[string]
	pack  []Strategy[string]
	price []Strategy[PricePair]
}

// NewFieldExtractor returns the extractor with structural strategies ahead of
// textual ones.
func NewFieldExtractor() *FieldExtractor {
	return &FieldExtractor{
		brand: []Strategy[string]{cardBodyBrand, textualBrand},
		pack:  []Strategy[string]{markedParagraphPack, textualPack},
		price: []Strategy[PricePair]{
			headingPrice,
			textualPrice,
			SelectorPrice(ListingPriceSelectors, ListingOriginalSelectors),
		},
	}
}

// Extract fills each field independently; a miss leaves the field nil.
func (e *FieldExtractor) Extract(container *goquery.Selection) medicine.ListingFields {
	var fields medicine.ListingFields
	if container == nil || container.Length() == 0 {
		return fields
	}
	if brand, ok := FirstOf(container, e.brand); ok {
		fields.BrandName = &brand
	}
	if pack, ok := FirstOf(container, e.pack); ok {
		fields.PackSize = &pack
	}
	if pair, ok := FirstOf(container, e.price); ok {
		fields.ListingPrice = pair.Current
		fields.ListingOriginalPrice = pair.Original
	}
	return fields
}

func validBrand(s string) (string, bool) {
	s = collapseSpace(s)
	if len(s) < 3 || len(s) > 100 || !brandCharset.MatchString(s) {
		return "", false
	}
	return s, true
}

func cleanBrand(s string) (string, bool) {
	for _, p := range brandSuffixes {
		s = p.ReplaceAllString(s, "")
	}
	return validBrand(s)
}

func cardBody(container *goquery.Selection) *goquery.Selection {
	if container.HasClass("card-body") {
		return container
	}
	return container.Find(".card-body").First()
}

func cardBodyBrand(container *goquery.Selection) (string, bool) {
	body := cardBody(container)
	if body.Length() == 0 {
		return "", false
	}
	var text string
	body.Find("p, h5, h6, .card-title").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := collapseSpace(s.Text())
		if t == "" || containsFold(t, packSizeMarker) {
			return true
		}
		text = t
		return false
	})
	if text == "" {
		return "", false
	}
	return validBrand(text)
}

func textualBrand(container *goquery.Selection) (string, bool) {
	text := stripPromotions(flatText(container))
	if loc := packMarkerPattern.FindStringIndex(text); loc != nil {
		before := strings.TrimSpace(text[:loc[0]])
		if brand, ok := cleanBrand(before); ok {
			return brand, true
		}
		if m := trailingRun.FindStringSubmatch(before); m != nil {
			if brand, ok := cleanBrand(m[1]); ok {
				return brand, true
			}
		}
	}
	for _, p := range []*regexp.Regexp{runBeforeMarker, runBeforeCompany} {
		if m := p.FindStringSubmatch(text); m != nil {
			if brand, ok := cleanBrand(m[1]); ok {
				return brand, true
			}
		}
	}
	return "", false
}

func markedParagraphPack(container *goquery.Selection) (string, bool) {
	var pack string
	container.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := collapseSpace(s.Text())
		loc := packMarkerPattern.FindStringIndex(text)
		if loc == nil {
			return true
		}
		pack = strings.TrimSpace(strings.TrimLeft(text[loc[1]:], ": "))
		return false
	})
	return pack, pack != ""
}

// ParsePackSize applies the textual pack-size patterns to text.
func ParsePackSize(text string) (string, bool) {
	for _, p := range packAfterMarker {
		if m := p.FindStringSubmatch(text); m != nil {
			if pack := strings.TrimSpace(m[1]); pack != "" {
				return pack, true
			}
		}
	}
	return "", false
}

func textualPack(container *goquery.Selection) (string, bool) {
	return ParsePackSize(flatText(container))
}

func headingPrice(container *goquery.Selection) (PricePair, bool) {
	heading := container.Find("h4, .price").First()
	if heading.Length() == 0 {
		return PricePair{}, false
	}
	cur, ok := ParseAmount(ownText(heading))
	if !ok {
		return PricePair{}, false
	}
	pair := PricePair{Current: &cur}
	if orig, ok := ParseAmount(flatText(heading.Find("del, s, strike, span").First())); ok {
		pair.Original = &orig
	}
	return pair, true
}

func textualPrice(container *goquery.Selection) (PricePair, bool) {
	return ParsePricePair(flatText(container))
}

// SelectorPrice tries each current-price selector until one parses, then
// independently does the same for the original price.
func SelectorPrice(current, original []string) Strategy[PricePair] {
	return func(scope *goquery.Selection) (PricePair, bool) {
		var pair PricePair
		if v, ok := firstAmount(scope, current); ok {
			pair.Current = &v
		}
		if v, ok := firstAmount(scope, original); ok {
			pair.Original = &v
		}
		return pair, pair.Current != nil || pair.Original != nil
	}
}

func firstAmount(scope *goquery.Selection, selectors []string) (float64, bool) {
	for _, sel := range selectors {
		node := scope.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if v, ok := ParseAmount(flatText(node)); ok {
			return v, true
		}
	}
	return 0, false
}
