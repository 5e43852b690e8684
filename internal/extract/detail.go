package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/pharma-listing-crawler/internal/medicine"
)

var (
	nameSelectors = []string{
		"h1", ".product-title", ".medicine-title", ".product-name", ".medicine-name", "title",
	}
	descriptionBlocks = ".product-description, .medicine-description, .description, #description"
	genericMarkers    = "h2, h3, h4, h5, h6, strong, b, span, p"
	genericSelectors  = []string{
		".generic-name", ".generic-info", ".active-ingredient", ".ingredient", ".drug-ingredient",
		`[class*="generic"]`, `[class*="ingredient"]`,
	}
	genericLinkSelectors = []string{
		`a[href*="generic"]`, ".generic-link a", `a[href*="ingredient"]`,
	}
	imageSelectors = []string{
		`img[src*="medicine"]`, `img[src*="product"]`, ".product-image img", ".medicine-image img",
		`img[alt*="medicine"]`, `img[alt*="drug"]`,
		`img[src*=".jpg"]`, `img[src*=".png"]`, `img[src*=".jpeg"]`, "img",
	}
	placeholderMarkers = []string{"placeholder", "no-image", "default"}

	// DetailPriceSelectors extend the listing lists for whole-page lookups.
	DetailPriceSelectors = []string{
		".price", ".current-price", ".discounted-price", ".sale-price", ".product-price", ".medicine-price",
		`span[class*="price"]`, `div[class*="price"]`, ".cost", ".amount",
	}
	DetailOriginalSelectors = []string{
		".original-price", ".old-price", ".strike-price", ".crossed-price",
		`span[class*="original"]`, `div[class*="original"]`, `span[class*="old"]`, `div[class*="old"]`,
	}

	genericLabel    = regexp.MustCompile(`(?i)^(Generic|Active|Ingredient|Contains|Composition)\s*:\s*`)
	labeledPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Generic[:\s]+([^,\n\r]+)`),
		regexp.MustCompile(`(?i)Active[:\s]+([^,\n\r]+)`),
		regexp.MustCompile(`(?i)Ingredient[:\s]+([^,\n\r]+)`),
		regexp.MustCompile(`(?i)Contains[:\s]+([^,\n\r]+)`),
		regexp.MustCompile(`(?i)Composition[:\s]+([^,\n\r]+)`),
	}
	compoundPatterns = []*regexp.Regexp{
		regexp.MustCompile(`([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\s+\([A-Za-z\s]*\d+[a-z]*\)`),
		regexp.MustCompile(`([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\s+\d+[a-z]*`),
	}
)

// DetailResolver fetches a detail page and extracts the detail-side fields.
type DetailResolver struct {
	fetcher medicine.Fetcher
	base    *url.URL
	logger  *zap.Logger
	generic []Strategy[string]
	price   Strategy[PricePair]
}

// NewDetailResolver builds a resolver that resolves links against baseURL.
func NewDetailResolver(fetcher medicine.Fetcher, baseURL string, logger *zap.Logger) (*DetailResolver, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetailResolver{
		fetcher: fetcher,
		base:    base,
		logger:  logger,
		generic: []Strategy[string]{describedGeneric, selectorGeneric, labeledGeneric, compoundGeneric},
		price:   SelectorPrice(DetailPriceSelectors, DetailOriginalSelectors),
	}, nil
}

// Resolve reports false when the detail page could not be fetched or parsed.
func (r *DetailResolver) Resolve(ctx context.Context, detailURL string) (medicine.Detail, bool) {
	outcome := r.fetcher.Fetch(ctx, detailURL)
	if !outcome.Success {
		r.logger.Warn("detail page unavailable",
			zap.String("url", detailURL),
			zap.Int("attempts", outcome.AttemptsUsed),
		)
		return medicine.Detail{}, false
	}
	detail, err := r.Parse(outcome.Content)
	if err != nil {
		r.logger.Warn("detail page unparsable", zap.String("url", detailURL), zap.Error(err))
		return medicine.Detail{}, false
	}
	return detail, true
}

// Parse extracts detail fields from page content.
func (r *DetailResolver) Parse(content []byte) (medicine.Detail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return medicine.Detail{}, fmt.Errorf("parse detail page: %w", err)
	}
	page := doc.Selection

	var detail medicine.Detail
	if name, ok := completeName(page); ok {
		detail.CompleteName = &name
	}
	if generic, ok := FirstOf(page, r.generic); ok {
		detail.GenericName = &generic
	}
	if link, ok := r.genericLink(page); ok {
		detail.GenericRefLink = &link
	}
	if pair, ok := r.price(page); ok {
		detail.DetailPrice = pair.Current
		detail.DetailOriginalPrice = pair.Original
	}
	if img, ok := r.imageURL(page); ok {
		detail.ImageURL = &img
	}
	return detail, nil
}

func completeName(page *goquery.Selection) (string, bool) {
	for _, sel := range nameSelectors {
		node := page.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if name := collapseSpace(node.Text()); len(name) > 3 {
			return name, true
		}
	}
	return "", false
}

// describedGeneric joins the generic links of a description block that
// carries a "Generic" marker element.
func describedGeneric(page *goquery.Selection) (string, bool) {
	var joined string
	page.Find(descriptionBlocks).EachWithBreak(func(_ int, block *goquery.Selection) bool {
		marked := block.Find(genericMarkers).FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(s.Text(), "Generic")
		})
		if marked.Length() == 0 {
			return true
		}
		var names []string
		genericAnchors(block).Each(func(_ int, a *goquery.Selection) {
			if t := collapseSpace(a.Text()); t != "" {
				names = append(names, t)
			}
		})
		if len(names) == 0 {
			return true
		}
		joined = strings.Join(names, ", ")
		return false
	})
	return joined, joined != ""
}

func selectorGeneric(page *goquery.Selection) (string, bool) {
	for _, sel := range genericSelectors {
		node := page.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		text := genericLabel.ReplaceAllString(collapseSpace(node.Text()), "")
		if i := strings.IndexAny(text, ",."); i >= 0 {
			text = text[:i]
		}
		if text = strings.TrimSpace(text); len(text) > 3 {
			return text, true
		}
	}
	return "", false
}

func labeledGeneric(page *goquery.Selection) (string, bool) {
	return firstPatternMatch(pageText(page), labeledPatterns)
}

func compoundGeneric(page *goquery.Selection) (string, bool) {
	return firstPatternMatch(pageText(page), compoundPatterns)
}

func firstPatternMatch(text string, patterns []*regexp.Regexp) (string, bool) {
	for _, p := range patterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			if v := strings.TrimSpace(m[1]); len(v) > 3 {
				return v, true
			}
		}
	}
	return "", false
}

func genericAnchors(s *goquery.Selection) *goquery.Selection {
	return s.Find("a[href]").FilterFunction(func(_ int, a *goquery.Selection) bool {
		return medicine.IsGenericHref(a.AttrOr("href", ""))
	})
}

// genericLink tries real /generic/ pages before the looser selectors.
func (r *DetailResolver) genericLink(page *goquery.Selection) (string, bool) {
	if href := strings.TrimSpace(genericAnchors(page).First().AttrOr("href", "")); href != "" {
		if abs, err := medicine.Resolve(r.base, href); err == nil {
			return abs, true
		}
	}
	for _, sel := range genericLinkSelectors {
		href := strings.TrimSpace(page.Find(sel).First().AttrOr("href", ""))
		if href == "" {
			continue
		}
		if abs, err := medicine.Resolve(r.base, href); err == nil {
			return abs, true
		}
	}
	return "", false
}

func (r *DetailResolver) imageURL(page *goquery.Selection) (string, bool) {
	for _, sel := range imageSelectors {
		var found string
		page.Find(sel).EachWithBreak(func(_ int, img *goquery.Selection) bool {
			src := strings.TrimSpace(img.AttrOr("src", ""))
			if src == "" || isPlaceholder(src) {
				return true
			}
			abs, err := medicine.Resolve(r.base, src)
			if err != nil {
				return true
			}
			found = abs
			return false
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

func isPlaceholder(src string) bool {
	lower := strings.ToLower(src)
	for _, m := range placeholderMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
