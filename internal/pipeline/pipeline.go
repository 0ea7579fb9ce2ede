package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"milhasradar/promoworker/internal/scraper"
	"milhasradar/promoworker/logger"
	promoerrors "milhasradar/promoworker/pkg/errors"
	"milhasradar/promoworker/services/publisher"
	"milhasradar/promoworker/services/store"
)

// Options control a single pipeline run
type Options struct {
	// MaxArticles caps how many candidates are considered; zero means the
	// configured default
	MaxArticles int

	// Enrich fetches the full article body even when the title alone parsed
	Enrich bool
}

// Config wires the pipeline's collaborators
type Config struct {
	Fetcher      scraper.PageFetcher
	Parser       *scraper.Parser
	Promotions   store.PromotionStore
	Jobs         store.JobStore
	Publisher    publisher.Publisher // optional
	ListingURL   string
	SourceDomain string
	MaxArticles  int
	SoftExpiry   time.Duration
	HardDelete   time.Duration
}

// Summary is the caller-facing result of one run
type Summary struct {
	Success           bool   `json:"success"`
	JobID             int64  `json:"job_id"`
	PagesScraped      int    `json:"pages_scraped"`
	ArticlesFound     int    `json:"articles_found"`
	PromotionsParsed  int    `json:"promotions_parsed"`
	PromotionsFound   int    `json:"promotions_found"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
	ErrorsCount       int    `json:"errors_count"`
	Error             string `json:"error,omitempty"`
}

// Pipeline sequences one scrape run: job tracking, listing fetch, link
// extraction, per-article parsing with enrichment, dedup, insert, publish
// and the retention sweep. Runs are strictly sequential: at most one
// outstanding external fetch at any moment.
type Pipeline struct {
	cfg Config
	log *logger.Logger
	now func() time.Time
}

// New creates a pipeline from the given configuration
func New(cfg Config) *Pipeline {
	if cfg.MaxArticles <= 0 {
		cfg.MaxArticles = scraper.DefaultMaxArticles
	}
	if cfg.SoftExpiry <= 0 {
		cfg.SoftExpiry = 7 * 24 * time.Hour
	}
	if cfg.HardDelete <= cfg.SoftExpiry {
		cfg.HardDelete = 30 * 24 * time.Hour
	}

	return &Pipeline{
		cfg: cfg,
		log: logger.ForPipeline(),
		now: time.Now,
	}
}

// Run executes one full pipeline run and returns its summary. The returned
// error is non-nil only for fatal failures (listing fetch, job tracking);
// per-article and persistence failures are absorbed into the job's errors.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	maxArticles := opts.MaxArticles
	if maxArticles <= 0 {
		maxArticles = p.cfg.MaxArticles
	}

	jobID, err := p.cfg.Jobs.CreateJob(ctx)
	if err != nil {
		return nil, err
	}

	log := p.log.WithField("job_id", jobID)
	log.Info().
		Int("max_articles", maxArticles).
		Bool("enrich", opts.Enrich).
		Msg("Starting scrape run")

	var jobErrors []scraper.JobError
	pagesScraped := 0

	listing, err := p.cfg.Fetcher.FetchPage(p.cfg.ListingURL)
	if err != nil {
		// A listing failure is fatal: no articles are processed
		fatal := promoerrors.NewListingFetch(p.cfg.ListingURL, "listing fetch failed", err)
		jobErrors = append(jobErrors, scraper.JobError{URL: p.cfg.ListingURL, Error: fatal.Error()})

		log.WithError(fatal).Error().Str("url", p.cfg.ListingURL).Msg("Listing fetch failed")

		if finErr := p.cfg.Jobs.FinalizeJob(ctx, jobID, scraper.JobFailed, 0, 0, jobErrors); finErr != nil {
			log.Error().Err(finErr).Msg("Failed to finalize failed job")
		}

		return &Summary{
			Success:     false,
			JobID:       jobID,
			ErrorsCount: len(jobErrors),
			Error:       fatal.Error(),
		}, fatal
	}
	pagesScraped++

	candidates := scraper.ExtractArticleLinks(listing, p.cfg.SourceDomain, maxArticles)
	log.Info().Int("candidates", len(candidates)).Msg("Extracted article candidates")

	var parsed []scraper.Promotion
	for _, candidate := range candidates {
		promo, fetched, articleErr := p.parseCandidate(candidate, opts.Enrich)
		if fetched {
			pagesScraped++
		}
		if articleErr != nil {
			// Article failures are non-fatal: record and continue
			jobErrors = append(jobErrors, scraper.JobError{URL: candidate.URL, Error: articleErr.Error()})
		}
		if promo != nil {
			parsed = append(parsed, *promo)
		}
	}

	newPromos, duplicates, dedupErrs := p.dedupAndInsert(ctx, parsed)
	jobErrors = append(jobErrors, dedupErrs...)

	p.publish(newPromos)

	jobErrors = append(jobErrors, p.sweepRetention(ctx)...)

	if err := p.cfg.Jobs.FinalizeJob(ctx, jobID, scraper.JobCompleted, pagesScraped, len(newPromos), jobErrors); err != nil {
		log.Error().Err(err).Msg("Failed to finalize job")
	}

	summary := &Summary{
		Success:           true,
		JobID:             jobID,
		PagesScraped:      pagesScraped,
		ArticlesFound:     len(candidates),
		PromotionsParsed:  len(parsed),
		PromotionsFound:   len(newPromos),
		DuplicatesSkipped: duplicates,
		ErrorsCount:       len(jobErrors),
	}

	log.Info().
		Int("articles_found", summary.ArticlesFound).
		Int("promotions_parsed", summary.PromotionsParsed).
		Int("promotions_found", summary.PromotionsFound).
		Int("duplicates_skipped", summary.DuplicatesSkipped).
		Int("errors", summary.ErrorsCount).
		Msg("Scrape run completed")

	return summary, nil
}

// parseCandidate applies the enrichment policy to a single candidate. The
// title-only parse is always tried first; the article body is fetched when
// enrichment is on or when the cheap parse failed, and a successful
// enriched parse replaces the title-only result.
func (p *Pipeline) parseCandidate(candidate scraper.ArticleCandidate, enrich bool) (promo *scraper.Promotion, fetched bool, err error) {
	promo = p.cfg.Parser.Parse(candidate, "")

	if !enrich && promo != nil {
		return promo, false, nil
	}

	content, fetchErr := p.cfg.Fetcher.FetchPage(candidate.URL)
	if fetchErr != nil {
		// Keep the title-only result if we have one
		return promo, false, fetchErr
	}

	if enriched := p.cfg.Parser.Parse(candidate, content); enriched != nil {
		promo = enriched
	}
	return promo, true, nil
}

// dedupAndInsert drops candidates whose hash is already stored and inserts
// the rest. Within one batch only the first of several identical-hash
// candidates survives.
func (p *Pipeline) dedupAndInsert(ctx context.Context, parsed []scraper.Promotion) (inserted []scraper.Promotion, duplicates int, jobErrors []scraper.JobError) {
	if len(parsed) == 0 {
		return nil, 0, nil
	}

	seen := make(map[string]struct{}, len(parsed))
	var batch []scraper.Promotion
	var hashes []string
	for _, promo := range parsed {
		if _, dup := seen[promo.ExternalHash]; dup {
			duplicates++
			continue
		}
		seen[promo.ExternalHash] = struct{}{}
		batch = append(batch, promo)
		hashes = append(hashes, promo.ExternalHash)
	}

	existing, err := p.cfg.Promotions.ExistsByHash(ctx, hashes)
	if err != nil {
		// The pre-check is an optimization; the conflict-safe insert below
		// is the authoritative guard, so proceed as if nothing existed.
		p.log.Warn().Err(err).Msg("Hash existence check failed, relying on insert conflicts")
		existing = map[string]bool{}
	}

	var fresh []scraper.Promotion
	for _, promo := range batch {
		if existing[promo.ExternalHash] {
			duplicates++
			continue
		}
		fresh = append(fresh, promo)
	}

	inserted, err = p.cfg.Promotions.InsertMany(ctx, fresh)
	if err != nil {
		// Partial success still counts; the job completes with whatever
		// was achieved
		jobErrors = append(jobErrors, scraper.JobError{Error: err.Error()})
	} else {
		// Rows skipped by the conflict guard lost a race with another run
		duplicates += len(fresh) - len(inserted)
	}

	return inserted, duplicates, jobErrors
}

// publish pushes newly inserted promotions to the stream. Failures are
// logged and do not affect the run outcome.
func (p *Pipeline) publish(promotions []scraper.Promotion) {
	if p.cfg.Publisher == nil || len(promotions) == 0 {
		return
	}

	for _, promo := range promotions {
		data, err := json.Marshal(promo)
		if err != nil {
			p.log.Error().Err(err).Str("title", promo.Title).Msg("Failed to marshal promotion")
			continue
		}
		if err := p.cfg.Publisher.Publish(data); err != nil {
			p.log.Error().Err(err).Str("title", promo.Title).Msg("Failed to publish promotion")
		}
	}

	if err := p.cfg.Publisher.TrimStream(); err != nil {
		p.log.Warn().Err(err).Msg("Failed to trim promotion stream")
	}
}
