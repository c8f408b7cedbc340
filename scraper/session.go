package scraper

import (
	"context"
	"errors"
	"time"
)

// ErrElementNotFound is returned when a required element is absent
// from the page or card.
var ErrElementNotFound = errors.New("element not found")

// Launcher starts an isolated session for a single scrape.
type Launcher interface {
	// Name identifies the backend ("browser", "http").
	Name() string

	// Launch acquires the resources of one session. The session is bound
	// to ctx: cancelling ctx aborts any operation in progress.
	Launch(ctx context.Context) (Session, error)
}

// Session is one open results page. Close must be called exactly once.
type Session interface {
	// Navigate loads url and waits until the page has settled.
	Navigate(url string) error

	// ScrollBy scrolls the element with the given id down by dy pixels.
	ScrollBy(containerID string, dy int) error

	// WaitSettled waits, up to timeout, for the page to stop changing
	// after a scroll. Not settling in time is not an error; only a
	// cancelled session is.
	WaitSettled(timeout time.Duration) error

	// Cards returns the elements currently matching selector, in DOM order.
	Cards(selector string) ([]Card, error)

	// ClickNext activates the first element matching selector and waits
	// for the resulting navigation. It reports false when no such element
	// exists.
	ClickNext(selector string) (bool, error)

	// Close releases the session's resources.
	Close() error
}

// Card is a handle to one rendered listing element.
type Card interface {
	// Text returns the rendered text of the first descendant matching
	// selector, or an error wrapping ErrElementNotFound.
	Text(selector string) (string, error)
}
