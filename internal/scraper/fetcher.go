package scraper

import (
	"fmt"
	"net/url"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"milhasradar/promoworker/helpers"
	"milhasradar/promoworker/logger"
	promoerrors "milhasradar/promoworker/pkg/errors"
	"milhasradar/promoworker/services/cache"
)

// PageFetcher turns a URL into readable page text for the parser.
type PageFetcher interface {
	// FetchPage returns the page content as markdown text
	FetchPage(url string) (string, error)
}

// HTTPPageFetcher fetches pages over HTTP, strips HTML boilerplate and
// converts the remainder to markdown. A short-lived block key in the cache
// suppresses refetching a host that is rate limiting us.
type HTTPPageFetcher struct {
	cacheSvc  cache.CacheService
	blockTime time.Duration
	converter *md.Converter
	log       *logger.Logger

	// fetchFunc is swappable for tests
	fetchFunc func(url string) (string, error)
}

// NewHTTPPageFetcher creates a page fetcher with the given block cache
func NewHTTPPageFetcher(cacheSvc cache.CacheService, blockTime time.Duration) *HTTPPageFetcher {
	f := &HTTPPageFetcher{
		cacheSvc:  cacheSvc,
		blockTime: blockTime,
		converter: md.NewConverter("", true, nil),
		log:       logger.ForFetcher(),
	}
	f.fetchFunc = f.fetchAndConvert
	return f
}

// FetchPage fetches a URL with rate-limit blocking and returns markdown text
func (f *HTTPPageFetcher) FetchPage(pageURL string) (string, error) {
	blockKey, err := f.blockKey(pageURL)
	if err != nil {
		return "", promoerrors.NewArticleFetch(pageURL, "invalid URL", err)
	}

	// Check if the host is currently blocked
	if f.cacheSvc != nil {
		if _, err := f.cacheSvc.Get(blockKey); err == nil {
			return "", promoerrors.NewArticleFetch(pageURL,
				fmt.Sprintf("fetch suppressed for %ds after rate limiting", int(f.blockTime/time.Second)), nil)
		}
	}

	text, err := f.fetchFunc(pageURL)
	if err != nil {
		if f.cacheSvc != nil && promoerrors.IsRateLimited(err) {
			if setErr := f.cacheSvc.Set(blockKey, []byte(fmt.Sprintf("%d", int(f.blockTime/time.Second))), f.blockTime); setErr != nil {
				f.log.Warn().Err(setErr).Msg("Failed to set fetch block key")
			}
		}
		return "", promoerrors.NewArticleFetch(pageURL, "page fetch failed", err)
	}

	return text, nil
}

// fetchAndConvert does the actual HTTP fetch and HTML-to-markdown conversion
func (f *HTTPPageFetcher) fetchAndConvert(pageURL string) (string, error) {
	body, err := helpers.FetchWithRandomHeaders(pageURL)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("HTML parse error: %w", err)
	}

	// Strip non-content boilerplate before conversion
	doc.Find("script, style, nav, header, footer, aside, form, iframe, noscript").Remove()

	html, err := doc.Find("body").Html()
	if err != nil || html == "" {
		if html, err = doc.Html(); err != nil {
			return "", fmt.Errorf("failed to render document: %w", err)
		}
	}

	markdown, err := f.converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("markdown conversion failed: %w", err)
	}

	return markdown, nil
}

func (f *HTTPPageFetcher) blockKey(pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	return "fetch_block:" + parsed.Hostname(), nil
}
