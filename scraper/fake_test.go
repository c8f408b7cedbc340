package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/use-agent/homescout/config"
)

// fakeCard is a card whose sub-elements are keyed by selector.
type fakeCard map[string]string

func (c fakeCard) Text(selector string) (string, error) {
	v, ok := c[selector]
	if !ok {
		return "", fmt.Errorf("%s: %w", selector, ErrElementNotFound)
	}
	return v, nil
}

// fakeSession serves a fixed sequence of result pages.
type fakeSession struct {
	mu sync.Mutex

	pages    [][]Card
	current  int
	loop     bool // next page always exists and wraps around
	navErr   error
	clickErr error
	noList   bool

	// perScroll > 0 renders cards lazily: each scroll reveals perScroll
	// more cards of the current page, renderDelay after the scroll.
	perScroll   int
	renderDelay time.Duration
	revealAt    []time.Time

	navigated []string
	scrolls   []int
	settles   int
	clicks    int
	closes    int
}

func (s *fakeSession) Navigate(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = append(s.navigated, url)
	s.revealAt = nil
	return s.navErr
}

func (s *fakeSession) ScrollBy(containerID string, dy int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noList {
		return fmt.Errorf("results container #%s: %w", containerID, ErrElementNotFound)
	}
	s.scrolls = append(s.scrolls, dy)
	s.revealAt = append(s.revealAt, time.Now().Add(s.renderDelay))
	return nil
}

func (s *fakeSession) WaitSettled(time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settles++
	return nil
}

func (s *fakeSession) Cards(string) ([]Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pages) == 0 {
		return nil, nil
	}
	page := s.pages[s.current]
	if s.perScroll > 0 {
		n := 0
		now := time.Now()
		for _, at := range s.revealAt {
			if !now.Before(at) {
				n += s.perScroll
			}
		}
		page = page[:min(n, len(page))]
	}
	return page, nil
}

func (s *fakeSession) ClickNext(string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clickErr != nil {
		return false, s.clickErr
	}
	if s.current+1 >= len(s.pages) {
		if !s.loop {
			return false, nil
		}
		s.current = -1
	}
	s.current++
	s.clicks++
	s.revealAt = nil
	return true, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// fakeLauncher hands out one prepared session per Launch.
type fakeLauncher struct {
	name      string
	sess      *fakeSession
	launchErr error
	launches  int
}

func (l *fakeLauncher) Name() string {
	if l.name == "" {
		return "browser"
	}
	return l.name
}

func (l *fakeLauncher) Launch(ctx context.Context) (Session, error) {
	l.launches++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	return l.sess, nil
}

var errBoom = errors.New("boom")

func testSite() config.SiteConfig {
	return config.SiteConfig{
		BaseURL:          "https://listings.test",
		ContainerID:      "search-page-list-container",
		CardSelector:     "article.card",
		PriceSelector:    ".price",
		AddressSelector:  "address",
		NextPageSelector: `[title="Next page"]`,
	}
}

func card(price, address string) Card {
	return fakeCard{".price": price, "address": address}
}
