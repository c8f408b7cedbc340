package models

import (
	"errors"
	"fmt"
)

// Error codes used in logs and internal error handling.
const (
	ErrCodeTimeout         = "SCRAPE_TIMEOUT"
	ErrCodeNavigation      = "NAVIGATION_FAILED"
	ErrCodeBrowserCrash    = "BROWSER_CRASH"
	ErrCodeElementNotFound = "ELEMENT_NOT_FOUND"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// Client-facing error messages. The scrape endpoint never exposes the
// underlying cause.
const (
	MsgMissingLocation = "Please provide both city and state"
	MsgScrapeFailed    = "Failed to scrape properties"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ErrorCode returns the code of the first ScrapeError in err's chain,
// or ErrCodeInternal.
func ErrorCode(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}
