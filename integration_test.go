package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milhasradar/promoworker/internal/pipeline"
	"milhasradar/promoworker/internal/scraper"
	"milhasradar/promoworker/services/cache"
)

// Listing and article pages that mimic the promotion blog. The fetcher is
// expected to strip the navigation and footer before parsing.
const listingHTML = `
<!DOCTYPE html>
<html>
<head><title>Milhas do Céu</title></head>
<body>
    <nav><a href="/categoria/dicas">Dicas</a></nav>
    <main>
        <h2><a href="%[1]s/passagens-sao-paulo-miami-35-mil">Passagens de São Paulo para Miami por 35.000 milhas Smiles</a></h2>
        <h2><a href="%[1]s/latam-pass-bonus-70">LATAM Pass com 70%% de bônus na transferência de pontos</a></h2>
        <h2><a href="%[1]s/categoria/promocoes">Todas as promoções</a></h2>
    </main>
    <footer>Política de cookies</footer>
</body>
</html>
`

const miamiArticleHTML = `
<!DOCTYPE html>
<html>
<body>
    <nav><a href="/">Início</a></nav>
    <article>
        <p>A Smiles liberou resgates de São Paulo para Miami a partir de 35.000 milhas o trecho em voos selecionados.</p>
        <p>A oferta vale para embarques até o fim do próximo mês e a disponibilidade é limitada.</p>
    </article>
    <footer>Rodapé do site</footer>
</body>
</html>
`

const latamArticleHTML = `
<!DOCTYPE html>
<html>
<body>
    <nav><a href="/">Início</a></nav>
    <article>
        <p>O LATAM Pass está oferecendo 70% de bônus na transferência de pontos do cartão de crédito.</p>
        <p>O bônus é creditado em até dez dias após a transferência e a campanha termina nesta sexta.</p>
    </article>
    <footer>Rodapé do site</footer>
</body>
</html>
`

// memCache implements cache.CacheService in memory
type memCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

var _ cache.CacheService = (*memCache)(nil)

func newMemCache() *memCache {
	return &memCache{items: make(map[string][]byte)}
}

func (m *memCache) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.items[key]; ok {
		return val, nil
	}
	return nil, errors.New("cache miss")
}

func (m *memCache) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *memCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// memStore implements store.PromotionStore and store.JobStore in memory
type memStore struct {
	mu     sync.Mutex
	byHash map[string]scraper.Promotion
	jobs   int64
}

func newMemStore() *memStore {
	return &memStore{byHash: make(map[string]scraper.Promotion)}
}

func (m *memStore) ExistsByHash(ctx context.Context, hashes []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := make(map[string]bool)
	for _, hash := range hashes {
		if _, ok := m.byHash[hash]; ok {
			existing[hash] = true
		}
	}
	return existing, nil
}

func (m *memStore) InsertMany(ctx context.Context, promotions []scraper.Promotion) ([]scraper.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var inserted []scraper.Promotion
	for _, promo := range promotions {
		if _, dup := m.byHash[promo.ExternalHash]; dup {
			continue
		}
		m.byHash[promo.ExternalHash] = promo
		inserted = append(inserted, promo)
	}
	return inserted, nil
}

func (m *memStore) DeactivateBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *memStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *memStore) CreateJob(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs++
	return m.jobs, nil
}

func (m *memStore) FinalizeJob(ctx context.Context, id int64, status scraper.JobStatus, pagesScraped, promotionsFound int, jobErrors []scraper.JobError) error {
	return nil
}

// TestIntegration runs the pipeline end to end against a local test server:
// real HTTP fetches, real HTML to markdown conversion, real parsing, with
// only persistence swapped for memory.
func TestIntegration(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/promocoes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, fmt.Sprintf(listingHTML, server.URL))
	})
	mux.HandleFunc("/passagens-sao-paulo-miami-35-mil", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, miamiArticleHTML)
	})
	mux.HandleFunc("/latam-pass-bonus-70", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, latamArticleHTML)
	})

	serverHost, err := url.Parse(server.URL)
	require.NoError(t, err)

	db := newMemStore()
	pipe := pipeline.New(pipeline.Config{
		Fetcher:      scraper.NewHTTPPageFetcher(newMemCache(), time.Second),
		Parser:       scraper.NewParser(scraper.DefaultRules(), "milhasdoceu"),
		Promotions:   db,
		Jobs:         db,
		ListingURL:   server.URL + "/promocoes",
		SourceDomain: serverHost.Hostname(),
	})

	summary, err := pipe.Run(context.Background(), pipeline.Options{Enrich: true})
	require.NoError(t, err)

	assert.True(t, summary.Success)
	assert.Equal(t, 3, summary.PagesScraped, "listing plus two articles")
	assert.Equal(t, 2, summary.ArticlesFound, "the category link is not an article")
	assert.Equal(t, 2, summary.PromotionsFound)
	assert.Equal(t, 0, summary.DuplicatesSkipped)
	assert.Equal(t, 0, summary.ErrorsCount)

	var miami, latam *scraper.Promotion
	for hash, promo := range db.byHash {
		promo := promo
		switch promo.Program {
		case "Smiles":
			miami = &promo
		case "LATAM Pass":
			latam = &promo
		}
		assert.Len(t, hash, 64)
	}

	require.NotNil(t, miami, "the Miami promotion should be persisted")
	assert.Equal(t, "São Paulo", miami.Origin)
	assert.Equal(t, "Miami", miami.Destination)
	assert.Equal(t, 35000, miami.Quantity)
	assert.Equal(t, scraper.QuantityMiles, miami.QuantityKind)
	assert.True(t, miami.Active)
	assert.NotEmpty(t, miami.Description)

	require.NotNil(t, latam, "the transfer bonus promotion should be persisted")
	assert.Equal(t, 70000, latam.Quantity, "a 70% bonus maps to a synthetic amount")
	assert.Equal(t, scraper.QuantityBonusProxy, latam.QuantityKind)

	// A second run over the same listing inserts nothing
	second, err := pipe.Run(context.Background(), pipeline.Options{Enrich: true})
	require.NoError(t, err)
	assert.Equal(t, 0, second.PromotionsFound)
	assert.Equal(t, 2, second.DuplicatesSkipped)
}
