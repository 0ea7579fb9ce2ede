package store

import (
	"context"
	"time"

	"milhasradar/promoworker/internal/scraper"
)

// PromotionStore persists promotion records.
//
// The ExistsByHash pre-check is an optimization only: two concurrent runs
// can both pass it before either inserts, so InsertMany must be the
// authoritative duplicate guard (ignore-on-conflict semantics).
type PromotionStore interface {
	// ExistsByHash returns the subset of hashes already persisted
	ExistsByHash(ctx context.Context, hashes []string) (map[string]bool, error)

	// InsertMany inserts the given promotions, silently skipping records
	// whose external_hash already exists. It returns the records that were
	// actually inserted.
	InsertMany(ctx context.Context, promotions []scraper.Promotion) ([]scraper.Promotion, error)

	// DeactivateBefore flips active=false on active promotions collected
	// before the cutoff. Idempotent.
	DeactivateBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteBefore permanently removes promotions collected before the
	// cutoff, active or not. Idempotent and irreversible.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// JobStore records the lifecycle of pipeline runs.
type JobStore interface {
	// CreateJob creates a running job and returns its id
	CreateJob(ctx context.Context) (int64, error)

	// FinalizeJob writes the final status, counters and errors exactly once
	FinalizeJob(ctx context.Context, id int64, status scraper.JobStatus, pagesScraped, promotionsFound int, jobErrors []scraper.JobError) error
}
