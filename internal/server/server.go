package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"milhasradar/promoworker/internal/pipeline"
	"milhasradar/promoworker/internal/scraper"
	"milhasradar/promoworker/logger"
	promoerrors "milhasradar/promoworker/pkg/errors"
)

// Runner triggers a scrape run; the pipeline satisfies it
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (*pipeline.Summary, error)
}

// JobReader looks up recorded scrape jobs; the Postgres store satisfies it
type JobReader interface {
	// GetJob returns the job with the given id, or nil when none exists
	GetJob(ctx context.Context, id int64) (*scraper.ScrapeJob, error)
}

// scrapeRequest is the optional POST /scrape body. An empty body runs with
// the configured defaults.
type scrapeRequest struct {
	MaxArticles int   `json:"max_articles" validate:"omitempty,gte=1,lte=100"`
	Enrich      *bool `json:"enrich"`
}

// Handler exposes the worker over HTTP: POST /scrape to trigger a run,
// GET /jobs/{id} to inspect a past run and GET /health for liveness.
type Handler struct {
	runner   Runner
	jobs     JobReader
	validate *validator.Validate
	log      *logger.Logger
}

// NewHandler returns a configured Handler
func NewHandler(runner Runner, jobs JobReader) *Handler {
	return &Handler{
		runner:   runner,
		jobs:     jobs,
		validate: validator.New(),
		log:      logger.ForServer(),
	}
}

// RegisterRoutes mounts all worker routes on mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/scrape", h.handleScrape)
	mux.HandleFunc("/jobs/", h.handleJob)
	mux.HandleFunc("/health", h.handleHealth)
}

func (h *Handler) handleScrape(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		verr := promoerrors.NewValidation(fmt.Sprintf("invalid request: %v", err))
		jsonError(w, verr.Error(), http.StatusBadRequest)
		return
	}

	opts := pipeline.Options{
		MaxArticles: req.MaxArticles,
		Enrich:      true,
	}
	if req.Enrich != nil {
		opts.Enrich = *req.Enrich
	}

	summary, err := h.runner.Run(r.Context(), opts)
	if err != nil {
		h.log.Error().Err(err).Msg("Scrape run failed")
		if summary != nil && promoerrors.IsFatal(err) {
			// The upstream listing was unreachable; the job is recorded
			// as failed and its summary returned
			writeJSON(w, http.StatusBadGateway, summary)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/jobs/"), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, "invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Int64("job_id", id).Msg("Job lookup failed")
		jsonError(w, "job lookup failed", http.StatusInternalServerError)
		return
	}
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// New builds an http.Server with the worker routes mounted
func New(port string, runner Runner, jobs JobReader) *http.Server {
	mux := http.NewServeMux()
	NewHandler(runner, jobs).RegisterRoutes(mux)

	return &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // a scrape run fetches many pages
	}
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
