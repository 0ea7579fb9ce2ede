package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"milhasradar/promoworker/internal/scraper"
	"milhasradar/promoworker/logger"
	promoerrors "milhasradar/promoworker/pkg/errors"
)

// NewPostgresPool creates and verifies a pgxpool connection pool
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return pool, nil
}

// PostgresStore implements PromotionStore and JobStore on Postgres
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresStore creates a store backed by the given pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		log:  logger.ForStore(),
	}
}

// ExistsByHash returns the subset of hashes already persisted
func (s *PostgresStore) ExistsByHash(ctx context.Context, hashes []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(hashes) == 0 {
		return existing, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT external_hash FROM promotions WHERE external_hash = ANY($1)`,
		hashes,
	)
	if err != nil {
		return nil, promoerrors.NewPersistence("hash existence query failed", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, promoerrors.NewPersistence("hash scan failed", err)
		}
		existing[hash] = true
	}

	if err := rows.Err(); err != nil {
		return nil, promoerrors.NewPersistence("hash existence query failed", err)
	}

	return existing, nil
}

// InsertMany inserts promotions one by one with ON CONFLICT DO NOTHING so a
// concurrent run inserting the same hash cannot produce a duplicate row.
func (s *PostgresStore) InsertMany(ctx context.Context, promotions []scraper.Promotion) ([]scraper.Promotion, error) {
	var inserted []scraper.Promotion

	for _, promo := range promotions {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO promotions
			   (program, origin, destination, quantity, quantity_kind, title,
			    description, link, source, collected_at, active, external_hash)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (external_hash) DO NOTHING`,
			promo.Program, nullable(promo.Origin), promo.Destination,
			promo.Quantity, string(promo.QuantityKind), promo.Title,
			nullable(promo.Description), promo.Link, promo.Source,
			promo.CollectedAt, promo.Active, promo.ExternalHash,
		)
		if err != nil {
			return inserted, promoerrors.NewPersistence(
				fmt.Sprintf("insert failed for %q", promo.Title), err)
		}
		if tag.RowsAffected() > 0 {
			inserted = append(inserted, promo)
		} else {
			// A concurrent run won the insert race for this hash
			s.log.Debug().Str("title", promo.Title).Msg("Skipped conflicting promotion")
		}
	}

	return inserted, nil
}

// DeactivateBefore flips active=false on promotions older than the cutoff
func (s *PostgresStore) DeactivateBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE promotions SET active = false WHERE active = true AND collected_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, promoerrors.NewPersistence("soft expiry update failed", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteBefore permanently removes promotions older than the cutoff
func (s *PostgresStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM promotions WHERE collected_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, promoerrors.NewPersistence("hard delete failed", err)
	}
	return tag.RowsAffected(), nil
}

// CreateJob creates a running scrape job and returns its id
func (s *PostgresStore) CreateJob(ctx context.Context) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO scrape_jobs (started_at, status) VALUES (now(), $1) RETURNING id`,
		string(scraper.JobRunning),
	).Scan(&id)
	if err != nil {
		return 0, promoerrors.NewPersistence("job create failed", err)
	}
	return id, nil
}

// GetJob returns a recorded scrape job, or nil when no such job exists
func (s *PostgresStore) GetJob(ctx context.Context, id int64) (*scraper.ScrapeJob, error) {
	var (
		job        scraper.ScrapeJob
		status     string
		errorsJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, started_at, completed_at, status, pages_scraped,
		        promotions_found, errors
		 FROM scrape_jobs WHERE id = $1`,
		id,
	).Scan(&job.ID, &job.StartedAt, &job.CompletedAt, &status,
		&job.PagesScraped, &job.PromotionsFound, &errorsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, promoerrors.NewPersistence("job query failed", err)
	}

	job.Status = scraper.JobStatus(status)
	if err := json.Unmarshal(errorsJSON, &job.Errors); err != nil {
		return nil, promoerrors.NewPersistence("job errors unmarshal failed", err)
	}
	return &job, nil
}

// FinalizeJob writes the final status, counters and errors for a run
func (s *PostgresStore) FinalizeJob(ctx context.Context, id int64, status scraper.JobStatus, pagesScraped, promotionsFound int, jobErrors []scraper.JobError) error {
	if jobErrors == nil {
		jobErrors = []scraper.JobError{}
	}
	errorsJSON, err := json.Marshal(jobErrors)
	if err != nil {
		return promoerrors.NewPersistence("job errors marshal failed", err)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE scrape_jobs
		 SET completed_at = now(), status = $2, pages_scraped = $3,
		     promotions_found = $4, errors = $5::jsonb
		 WHERE id = $1`,
		id, string(status), pagesScraped, promotionsFound, errorsJSON,
	)
	if err != nil {
		return promoerrors.NewPersistence("job finalize failed", err)
	}
	return nil
}

// nullable maps empty strings to NULL for optional text columns
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
