package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Markers used across listing and detail markup.
const (
	currencyMarker = "Rs"
	packSizeMarker = "Pack Size"
	addToCart      = "Add to Cart"
)

var (
	amountPattern = regexp.MustCompile(`Rs\s*(\d+(?:,\d+)*)`)
	pairPattern   = regexp.MustCompile(`Rs\s*(\d+(?:,\d+)*)Rs\s*(\d+(?:,\d+)*)`)
	spacePattern  = regexp.MustCompile(`\s+`)

	promoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\d+%\s*Off`),
		regexp.MustCompile(`(?i)Discount`),
		regexp.MustCompile(`(?i)Sale`),
		regexp.MustCompile(`(?i)Promotion`),
		regexp.MustCompile(`(?i)Special\s+Offer`),
		regexp.MustCompile(`(?i)Limited\s+Time`),
		regexp.MustCompile(`(?i)Free\s+Shipping`),
		regexp.MustCompile(`(?i)Buy\s+One\s+Get\s+One`),
		regexp.MustCompile(`(?i)BOGO`),
		regexp.MustCompile(`(?i)Best\s+Seller`),
		regexp.MustCompile(`(?i)Top\s+Rated`),
		regexp.MustCompile(`(?i)Featured`),
	}
)

// PricePair is a current price with an optional struck-through original.
type PricePair struct {
	Current  *float64
	Original *float64
}

// ParseAmount parses the first currency token in text. Thousands separators
// are stripped; an unparsable amount reports false.
func ParseAmount(text string) (float64, bool) {
	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return parseDigits(m[1])
}

// ParsePricePair reads "Rs <a>Rs <b>" as (current, original), or a lone
// "Rs <a>" as a current price without an original.
func ParsePricePair(text string) (PricePair, bool) {
	if m := pairPattern.FindStringSubmatch(text); m != nil {
		cur, okCur := parseDigits(m[1])
		orig, okOrig := parseDigits(m[2])
		if okCur && okOrig {
			return PricePair{Current: &cur, Original: &orig}, true
		}
	}
	if cur, ok := ParseAmount(text); ok {
		return PricePair{Current: &cur}, true
	}
	return PricePair{}, false
}

func parseDigits(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// flatText concatenates the trimmed text nodes under sel without separators,
// so "<p>Acefyl</p><p>Pack Size: 1</p>" reads "AcefylPack Size: 1".
func flatText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		walkText(n, func(data string) {
			b.WriteString(strings.TrimSpace(data))
		})
	}
	return b.String()
}

// pageText returns the raw text of the document with line structure kept.
func pageText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		walkText(n, func(data string) {
			b.WriteString(data)
		})
	}
	return b.String()
}

// ownText returns the trimmed text of sel's direct text children.
func ownText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func walkText(n *html.Node, emit func(string)) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript":
			return
		}
	}
	if n.Type == html.TextNode {
		emit(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, emit)
	}
}

func collapseSpace(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// stripPromotions removes promotional phrases and collapses whitespace.
func stripPromotions(text string) string {
	for _, p := range promoPatterns {
		text = p.ReplaceAllString(text, "")
	}
	return collapseSpace(text)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
