package scraper

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultMaxArticles caps how many candidates one run considers when the
// caller does not say otherwise.
const DefaultMaxArticles = 20

// headingLinkRe matches heading-style markdown links on the listing page,
// e.g. `## [Passagens para Miami por 35.000 milhas](https://.../promo-x)`.
var headingLinkRe = regexp.MustCompile(`(?m)^#{1,6}[^\n\[]*\[([^\]]+)\]\((https?://[^)\s]+)\)`)

// Path segments that mark index/navigation pages rather than articles.
var nonArticleSegments = map[string]struct{}{
	"categoria": {},
	"category":  {},
	"tag":       {},
	"tags":      {},
	"page":      {},
	"pagina":    {},
	"author":    {},
	"autor":     {},
}

// ExtractArticleLinks turns listing-page markdown into an ordered,
// de-duplicated list of article candidates on the given domain, truncated
// to limit. Finding no links is not an error; the run simply proceeds with
// zero candidates.
func ExtractArticleLinks(listing, domain string, limit int) []ArticleCandidate {
	if limit <= 0 {
		limit = DefaultMaxArticles
	}

	seen := make(map[string]struct{})
	var candidates []ArticleCandidate

	for _, match := range headingLinkRe.FindAllStringSubmatch(listing, -1) {
		title := strings.Trim(strings.TrimSpace(match[1]), "*_")
		link := strings.TrimSpace(match[2])

		parsed, err := url.Parse(link)
		if err != nil {
			continue
		}
		if !onDomain(parsed.Hostname(), domain) {
			continue
		}
		if !isArticlePath(parsed.Path) {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}

		candidates = append(candidates, ArticleCandidate{Title: title, URL: link})
		if len(candidates) == limit {
			break
		}
	}

	return candidates
}

func onDomain(host, domain string) bool {
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func isArticlePath(path string) bool {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		// bare domain root
		return false
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if _, bad := nonArticleSegments[strings.ToLower(segment)]; bad {
			return false
		}
	}
	return true
}
