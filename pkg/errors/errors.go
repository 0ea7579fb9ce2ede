package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeFetch represents listing or article fetch failures
	ErrorTypeFetch ErrorType = "fetch"
	// ErrorTypePersistence represents insert/update/delete failures at the store boundary
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeValidation represents request validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// PromoError represents a pipeline-specific error.
// A fetch error for the listing page is fatal for the whole run;
// a fetch error for an individual article is recorded and skipped.
type PromoError struct {
	Type    ErrorType
	URL     string
	Message string
	Err     error
	Fatal   bool
	Time    time.Time
}

// Error implements the error interface
func (e *PromoError) Error() string {
	if e.Err != nil {
		if e.URL != "" {
			return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.URL, e.Message, e.Err)
		}
		return fmt.Sprintf("[%s] %s - %v", e.Type, e.Message, e.Err)
	}
	if e.URL != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.URL, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *PromoError) Unwrap() error {
	return e.Err
}

// New creates a new PromoError
func New(errType ErrorType, url, message string, err error) *PromoError {
	return &PromoError{
		Type:    errType,
		URL:     url,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewListingFetch creates a fetch error for the listing page. It aborts the run.
func NewListingFetch(url, message string, err error) *PromoError {
	e := New(ErrorTypeFetch, url, message, err)
	e.Fatal = true
	return e
}

// NewArticleFetch creates a fetch error for a single article. The run continues.
func NewArticleFetch(url, message string, err error) *PromoError {
	return New(ErrorTypeFetch, url, message, err)
}

// NewPersistence creates a new persistence error
func NewPersistence(message string, err error) *PromoError {
	return New(ErrorTypePersistence, "", message, err)
}

// NewValidation creates a new validation error
func NewValidation(message string) *PromoError {
	return New(ErrorTypeValidation, "", message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *PromoError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// IsFatal reports whether err carries a fatal PromoError
func IsFatal(err error) bool {
	var pe *PromoError
	if errors.As(err, &pe) {
		return pe.Fatal
	}
	return false
}

// RateLimitError signals that the source site throttled the request
// (HTTP 429/430). The fetcher reacts by blocking the host for a while.
type RateLimitError struct {
	URL        string
	RetryAfter string
}

// Error implements the error interface
func (e *RateLimitError) Error() string {
	if e.RetryAfter != "" {
		return fmt.Sprintf("rate limited fetching %s; retry after %s", e.URL, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited fetching %s", e.URL)
}

// IsRateLimited reports whether err carries a RateLimitError
func IsRateLimited(err error) bool {
	var re *RateLimitError
	return errors.As(err, &re)
}
