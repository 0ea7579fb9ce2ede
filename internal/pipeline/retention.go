package pipeline

import (
	"context"

	"milhasradar/promoworker/internal/scraper"
)

// sweepRetention ages out old promotions after a successful run. Records
// older than the soft-expiry window are marked inactive; records older than
// the hard-delete window are removed entirely. Both operations are
// idempotent, and New guarantees the hard window exceeds the soft one.
func (p *Pipeline) sweepRetention(ctx context.Context) []scraper.JobError {
	var jobErrors []scraper.JobError
	now := p.now()

	deactivated, err := p.cfg.Promotions.DeactivateBefore(ctx, now.Add(-p.cfg.SoftExpiry))
	if err != nil {
		jobErrors = append(jobErrors, scraper.JobError{Error: err.Error()})
	} else if deactivated > 0 {
		p.log.Info().Int64("count", deactivated).Msg("Deactivated expired promotions")
	}

	deleted, err := p.cfg.Promotions.DeleteBefore(ctx, now.Add(-p.cfg.HardDelete))
	if err != nil {
		jobErrors = append(jobErrors, scraper.JobError{Error: err.Error()})
	} else if deleted > 0 {
		p.log.Info().Int64("count", deleted).Msg("Deleted aged-out promotions")
	}

	return jobErrors
}
