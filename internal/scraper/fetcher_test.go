package scraper

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	promoerrors "milhasradar/promoworker/pkg/errors"
)

func TestFetchPageConvertsToMarkdown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><script>tracking()</script></head><body>
			<nav>menu que deve sumir</nav>
			<h2><a href="https://milhasdoceu.com.br/promo-1">Passagem SP → Miami por 35.000 milhas</a></h2>
			<p>Parágrafo com o conteúdo da promoção.</p>
			<footer>rodapé que deve sumir</footer>
		</body></html>`))
	}))
	defer server.Close()

	fetcher := NewHTTPPageFetcher(NewMockCacheService(), time.Minute)

	text, err := fetcher.FetchPage(server.URL)
	require.NoError(t, err)

	assert.Contains(t, text, "[Passagem SP → Miami por 35.000 milhas](https://milhasdoceu.com.br/promo-1)")
	assert.Contains(t, text, "Parágrafo com o conteúdo da promoção.")
	assert.NotContains(t, text, "menu que deve sumir")
	assert.NotContains(t, text, "rodapé que deve sumir")
	assert.NotContains(t, text, "tracking()")
}

func TestFetchPageError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fetcher := NewHTTPPageFetcher(NewMockCacheService(), time.Minute)

	_, err := fetcher.FetchPage(server.URL)
	require.Error(t, err)

	var pe *promoerrors.PromoError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, promoerrors.ErrorTypeFetch, pe.Type)
	assert.False(t, pe.Fatal)
}

func TestFetchPageRateLimitBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	mockCache := NewMockCacheService()
	fetcher := NewHTTPPageFetcher(mockCache, time.Minute)

	_, err := fetcher.FetchPage(server.URL)
	require.Error(t, err)

	// The rate-limited response sets a block key; the next fetch is
	// suppressed without touching the network
	calls := 0
	fetcher.fetchFunc = func(url string) (string, error) {
		calls++
		return "", errors.New("should not be called")
	}

	_, err = fetcher.FetchPage(server.URL)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "suppressed")
	assert.Equal(t, 0, calls)
}
