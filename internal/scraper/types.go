package scraper

import "time"

// QuantityKind tells whether Quantity is a real miles/points amount or a
// synthetic proxy derived from a bonus percentage.
type QuantityKind string

const (
	QuantityMiles      QuantityKind = "miles"
	QuantityBonusProxy QuantityKind = "bonus_proxy"
)

// Promotion represents a structured promotion extracted from a blog article
type Promotion struct {
	ID           int64        `json:"id,omitempty"`
	Program      string       `json:"program"`
	Origin       string       `json:"origin,omitempty"`
	Destination  string       `json:"destination"`
	Quantity     int          `json:"quantity"`
	QuantityKind QuantityKind `json:"quantity_kind"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Link         string       `json:"link"`
	Source       string       `json:"source"`
	CollectedAt  time.Time    `json:"collected_at"`
	Active       bool         `json:"active"`
	ExternalHash string       `json:"external_hash"`
}

// ArticleCandidate is a listing entry pointing at an article page.
// It only lives within one pipeline run.
type ArticleCandidate struct {
	Title string
	URL   string
}

// JobStatus is the lifecycle state of a scrape job
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobError records a single per-article or persistence failure within a run
type JobError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// ScrapeJob records the lifecycle and outcome of one pipeline run
type ScrapeJob struct {
	ID              int64      `json:"id"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Status          JobStatus  `json:"status"`
	PagesScraped    int        `json:"pages_scraped"`
	PromotionsFound int        `json:"promotions_found"`
	Errors          []JobError `json:"errors,omitempty"`
}
