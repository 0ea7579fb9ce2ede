package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"milhasradar/promoworker/internal/scraper"
)

// mockFetcher serves canned pages and records fetch order
type mockFetcher struct {
	pages   map[string]string
	fails   map[string]error
	fetched []string
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{
		pages: make(map[string]string),
		fails: make(map[string]error),
	}
}

func (m *mockFetcher) FetchPage(url string) (string, error) {
	m.fetched = append(m.fetched, url)
	if err, ok := m.fails[url]; ok {
		return "", err
	}
	if page, ok := m.pages[url]; ok {
		return page, nil
	}
	return "", errors.New("no such page: " + url)
}

func (m *mockFetcher) countFetches(url string) int {
	count := 0
	for _, fetched := range m.fetched {
		if fetched == url {
			count++
		}
	}
	return count
}

// mockPromotionStore mirrors the Postgres store semantics in memory: the
// insert path ignores duplicate hashes, retention flips/deletes by cutoff.
type mockPromotionStore struct {
	mu         sync.Mutex
	byHash     map[string]*scraper.Promotion
	order      []string
	existsErr  error
	insertErr  error
	insertCap  int // fail after this many inserts when insertErr is set; 0 = fail all
	deactivate []time.Time
	delete     []time.Time
}

func newMockPromotionStore() *mockPromotionStore {
	return &mockPromotionStore{byHash: make(map[string]*scraper.Promotion)}
}

func (m *mockPromotionStore) ExistsByHash(ctx context.Context, hashes []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return nil, m.existsErr
	}
	existing := make(map[string]bool)
	for _, hash := range hashes {
		if _, ok := m.byHash[hash]; ok {
			existing[hash] = true
		}
	}
	return existing, nil
}

func (m *mockPromotionStore) InsertMany(ctx context.Context, promotions []scraper.Promotion) ([]scraper.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var inserted []scraper.Promotion
	for i, promo := range promotions {
		if m.insertErr != nil && i >= m.insertCap {
			return inserted, m.insertErr
		}
		if _, dup := m.byHash[promo.ExternalHash]; dup {
			continue
		}
		stored := promo
		m.byHash[promo.ExternalHash] = &stored
		m.order = append(m.order, promo.ExternalHash)
		inserted = append(inserted, promo)
	}
	return inserted, nil
}

func (m *mockPromotionStore) DeactivateBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deactivate = append(m.deactivate, cutoff)

	var count int64
	for _, promo := range m.byHash {
		if promo.Active && promo.CollectedAt.Before(cutoff) {
			promo.Active = false
			count++
		}
	}
	return count, nil
}

func (m *mockPromotionStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delete = append(m.delete, cutoff)

	var count int64
	for hash, promo := range m.byHash {
		if promo.CollectedAt.Before(cutoff) {
			delete(m.byHash, hash)
			count++
		}
	}
	return count, nil
}

func (m *mockPromotionStore) seed(promo scraper.Promotion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := promo
	m.byHash[promo.ExternalHash] = &stored
}

func (m *mockPromotionStore) get(hash string) *scraper.Promotion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byHash[hash]
}

func (m *mockPromotionStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash)
}

// mockJobStore records job lifecycle calls
type mockJobStore struct {
	mu        sync.Mutex
	nextID    int64
	createErr error
	finalized map[int64]*finalizedJob
}

type finalizedJob struct {
	status          scraper.JobStatus
	pagesScraped    int
	promotionsFound int
	errors          []scraper.JobError
}

func newMockJobStore() *mockJobStore {
	return &mockJobStore{finalized: make(map[int64]*finalizedJob)}
}

func (m *mockJobStore) CreateJob(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.nextID++
	return m.nextID, nil
}

func (m *mockJobStore) FinalizeJob(ctx context.Context, id int64, status scraper.JobStatus, pagesScraped, promotionsFound int, jobErrors []scraper.JobError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized[id] = &finalizedJob{
		status:          status,
		pagesScraped:    pagesScraped,
		promotionsFound: promotionsFound,
		errors:          jobErrors,
	}
	return nil
}

// mockPublisher collects published payloads
type mockPublisher struct {
	mu       sync.Mutex
	messages [][]byte
	trimmed  int
	failWith error
}

func (m *mockPublisher) Publish(message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.messages = append(m.messages, message)
	return nil
}

func (m *mockPublisher) TrimStream() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trimmed++
	return nil
}

func (m *mockPublisher) Close() error { return nil }
