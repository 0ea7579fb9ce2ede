package scraper

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	minTitleLength       = 10
	minQuantity          = 1000
	maxBareQuantity      = 500000
	minBonusPercent      = 10
	maxTitleLength       = 200
	maxDescriptionLength = 300
	minDescriptionLine   = 30
)

var (
	// "35 mil milhas" / "20 thousand points"
	thousandWordRe = regexp.MustCompile(`(?i)(\d{1,3})\s*(?:mil|thousand)\s+(?:milhas|pontos|miles|points)`)

	// "35.000 milhas" / "120,000 points"
	groupedUnitRe = regexp.MustCompile(`(?i)(\d{1,3}(?:[.,]\d{3})+)\s*(?:milhas|pontos|miles|points)`)

	// any grouped-thousands number, used as a last-resort quantity
	groupedNumberRe = regexp.MustCompile(`\d{1,3}(?:[.,]\d{3})+`)

	// "70%" style bonus percentages
	bonusPercentRe = regexp.MustCompile(`(\d{1,3})\s*%`)

	// "SP → Miami" / "São Paulo -> Lisboa"
	arrowRouteRe = regexp.MustCompile(`(\p{Lu}[\p{L}]*(?:\s\p{Lu}[\p{L}]*)*)\s*(?:→|->)\s*(\p{Lu}[\p{L}]*(?:\s\p{Lu}[\p{L}]*)*)`)

	// "de São Paulo para Miami" / "from New York to Lisbon"
	fromToRouteRe = regexp.MustCompile(`(?:\b|^)(?:de|De|from|From)\s+(\p{Lu}[\p{L}]*(?:\s\p{Lu}[\p{L}]*)*)\s+(?:para|to)\s+(\p{Lu}[\p{L}]*(?:\s\p{Lu}[\p{L}]*)*)`)

	// weaker "para Miami" / "to Lisbon" destination-only pattern
	destOnlyRe = regexp.MustCompile(`(?:\b|^)(?:para|to|for)\s+(\p{Lu}[\p{L}]*(?:\s\p{Lu}[\p{L}]*)*)`)
)

// Leading words that precede the origin in route phrases like
// "Passagem SP → Miami" and are not part of the city name.
var routeNoiseWords = map[string]struct{}{
	"passagem":  {},
	"passagens": {},
	"voo":       {},
	"voos":      {},
	"promoção":  {},
	"promocao":  {},
	"trecho":    {},
	"trechos":   {},
	"milhas":    {},
}

// Parser turns article titles (optionally plus full article text) into
// Promotion candidates using the injected rule tables. A nil result is a
// rejection, which is a normal filtering outcome rather than an error.
type Parser struct {
	rules  Rules
	source string
	now    func() time.Time
}

// NewParser creates a parser bound to the given rule tables and source name
func NewParser(rules Rules, source string) *Parser {
	return &Parser{
		rules:  rules,
		source: source,
		now:    time.Now,
	}
}

// Parse extracts a Promotion candidate from an article title and optional
// full article text. It returns nil when the article is rejected.
func (p *Parser) Parse(candidate ArticleCandidate, content string) *Promotion {
	title := strings.TrimSpace(candidate.Title)
	if utf8.RuneCountInString(title) < minTitleLength {
		return nil
	}

	haystack := strings.ToLower(title + "\n" + content)
	for _, phrase := range p.rules.Denylist {
		if strings.Contains(haystack, strings.ToLower(phrase)) {
			return nil
		}
	}

	program := p.classifyProgram(haystack)

	quantity, kind, ok := p.extractQuantity(title, content)
	if !ok || quantity < minQuantity {
		return nil
	}

	origin, destination := p.extractRoute(title + "\n" + content)

	collectedAt := p.now()
	title = truncateRunes(title, maxTitleLength)

	return &Promotion{
		Program:      program,
		Origin:       origin,
		Destination:  destination,
		Quantity:     quantity,
		QuantityKind: kind,
		Title:        title,
		Description:  p.buildDescription(title, content),
		Link:         candidate.URL,
		Source:       p.source,
		CollectedAt:  collectedAt,
		Active:       true,
		ExternalHash: ExternalHash(title, quantity, collectedAt),
	}
}

// classifyProgram matches known loyalty-program names case-insensitively
// against the lowercased title+content, falling back to the generic bucket.
func (p *Parser) classifyProgram(haystack string) string {
	for _, program := range p.rules.Programs {
		if strings.Contains(haystack, strings.ToLower(program)) {
			return program
		}
	}
	return p.rules.FallbackProgram
}

// extractQuantity resolves the promotion's numeric value. Lines containing
// quantity keywords are scanned first, then the rest. Pattern priority:
// "<N> mil milhas", then a grouped number directly followed by a unit, then
// any grouped number in a sane range. When no amount is found, a bonus
// percentage of at least 10% yields a synthetic N*1000 proxy.
func (p *Parser) extractQuantity(title, content string) (int, QuantityKind, bool) {
	lines := p.orderedLines(title, content)

	for _, line := range lines {
		if m := thousandWordRe.FindStringSubmatch(line); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil && n >= 1 {
				return n * 1000, QuantityMiles, true
			}
		}
	}

	for _, line := range lines {
		if m := groupedUnitRe.FindStringSubmatch(line); m != nil {
			if n, err := parseGrouped(m[1]); err == nil && n >= minQuantity {
				return n, QuantityMiles, true
			}
		}
	}

	for _, line := range lines {
		for _, raw := range groupedNumberRe.FindAllString(line, -1) {
			n, err := parseGrouped(raw)
			if err == nil && n >= minQuantity && n <= maxBareQuantity {
				return n, QuantityMiles, true
			}
		}
	}

	// The first qualifying percentage wins; smaller figures (cashback
	// teasers, discount asides) are skipped, not grounds for rejection.
	for _, m := range bonusPercentRe.FindAllStringSubmatch(title+"\n"+content, -1) {
		n, err := strconv.Atoi(m[1])
		if err == nil && n >= minBonusPercent {
			return n * 1000, QuantityBonusProxy, true
		}
	}

	return 0, "", false
}

// orderedLines returns title+content lines with keyword-bearing lines first,
// preserving relative order within each group.
func (p *Parser) orderedLines(title, content string) []string {
	all := strings.Split(title+"\n"+content, "\n")

	var preferred, rest []string
	for _, line := range all {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if p.hasQuantityKeyword(line) {
			preferred = append(preferred, line)
		} else {
			rest = append(rest, line)
		}
	}

	return append(preferred, rest...)
}

func (p *Parser) hasQuantityKeyword(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range p.rules.QuantityKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// extractRoute tries an explicit "CityA → CityB" / "de CityA para CityB"
// pattern first, then a weaker destination-only "para CityB" pattern, and
// finally falls back to the generic destination label with origin unset.
func (p *Parser) extractRoute(text string) (origin, destination string) {
	if m := arrowRouteRe.FindStringSubmatch(text); m != nil {
		origin = p.normalizeOrigin(stripRouteNoise(m[1]))
		destination = strings.TrimSpace(m[2])
		if origin != "" && destination != "" {
			return origin, destination
		}
	}

	if m := fromToRouteRe.FindStringSubmatch(text); m != nil {
		origin = p.normalizeOrigin(stripRouteNoise(m[1]))
		destination = strings.TrimSpace(m[2])
		if origin != "" && destination != "" {
			return origin, destination
		}
	}

	for _, m := range destOnlyRe.FindAllStringSubmatch(text, -1) {
		dest := strings.TrimSpace(m[1])
		if dest == "" || p.isProgramName(dest) {
			continue
		}
		return "", dest
	}

	return "", p.rules.FallbackDestination
}

func (p *Parser) isProgramName(s string) bool {
	lower := strings.ToLower(s)
	for _, program := range p.rules.Programs {
		if lower == strings.ToLower(program) {
			return true
		}
	}
	return false
}

// normalizeOrigin resolves abbreviated origins (SP, GRU, ...) through the
// alias table; unknown origins pass through verbatim.
func (p *Parser) normalizeOrigin(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return ""
	}
	if normalized, ok := p.rules.OriginAliases[strings.ToLower(origin)]; ok {
		return normalized
	}
	return origin
}

// stripRouteNoise drops leading words like "Passagem" from a captured
// origin phrase, keeping only the city part.
func stripRouteNoise(captured string) string {
	tokens := strings.Fields(captured)
	for len(tokens) > 1 {
		if _, noise := routeNoiseWords[strings.ToLower(tokens[0])]; !noise {
			break
		}
		tokens = tokens[1:]
	}
	return strings.Join(tokens, " ")
}

// buildDescription takes the first one or two substantial content lines,
// falling back to the title when no article text is available.
func (p *Parser) buildDescription(title, content string) string {
	if strings.TrimSpace(content) == "" {
		return truncateRunes(title, maxDescriptionLength)
	}

	var picked []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) <= minDescriptionLine {
			continue
		}
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "[") || strings.HasPrefix(line, "![") {
			continue
		}
		picked = append(picked, line)
		if len(picked) == 2 {
			break
		}
	}

	if len(picked) == 0 {
		return truncateRunes(title, maxDescriptionLength)
	}

	return truncateRunes(strings.Join(picked, " "), maxDescriptionLength)
}

// ExternalHash derives the idempotency key from title, quantity and the
// collection day. Identical inputs on the same day always hash the same.
func ExternalHash(title string, quantity int, collectedAt time.Time) string {
	payload := fmt.Sprintf("%s|%d|%s", title, quantity, collectedAt.Format("2006-01-02"))
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func parseGrouped(raw string) (int, error) {
	cleaned := strings.NewReplacer(".", "", ",", "").Replace(raw)
	return strconv.Atoi(cleaned)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
