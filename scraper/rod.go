package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/homescout/config"
	"github.com/ysmood/gson"
)

// scrollJS scrolls the element with the given id and reports whether it exists.
const scrollJS = `(id, dy) => {
	const el = document.getElementById(id);
	if (!el) return false;
	el.scrollBy(0, dy);
	return true;
}`

// RodLauncher starts a dedicated headless Chromium for every session.
// Nothing is shared between sessions.
type RodLauncher struct {
	browserCfg config.BrowserConfig
	scraperCfg config.ScraperConfig
}

// NewRodLauncher creates a RodLauncher.
func NewRodLauncher(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig) *RodLauncher {
	return &RodLauncher{browserCfg: browserCfg, scraperCfg: scraperCfg}
}

func (r *RodLauncher) Name() string { return "browser" }

// Launch starts Chromium, connects to it and opens one tab.
//
// Order matters:
//   - stealth JS and the hijack router only affect navigations that start
//     after they are installed, so both happen here, before Navigate.
//   - the browser is connected without the request context so Close can
//     still talk to it after the request deadline has passed.
func (r *RodLauncher) Launch(ctx context.Context) (Session, error) {
	l := launcher.New().
		Context(ctx).
		Headless(r.browserCfg.Headless).
		NoSandbox(r.browserCfg.NoSandbox)

	if r.browserCfg.BrowserBin != "" {
		l = l.Bin(r.browserCfg.BrowserBin)
	}
	if r.browserCfg.Proxy != "" {
		l = l.Proxy(r.browserCfg.Proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		releaseLauncher(l)
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	slog.Debug("browser launched", "controlURL", controlURL)

	sess := &rodSession{
		launcher:   l,
		navTimeout: r.scraperCfg.NavigationTimeout,
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	sess.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}

	if r.browserCfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}

	sess.router = setupHijack(page, r.scraperCfg.BlockedResourceTypes, r.scraperCfg.BlockAds, &sess.blocked)
	sess.page = page.Context(ctx)
	return sess, nil
}

// rodSession is one Chromium process with a single tab.
type rodSession struct {
	launcher   *launcher.Launcher
	browser    *rod.Browser
	router     *rod.HijackRouter
	page       *rod.Page // bound to the request context
	navTimeout time.Duration
	referer    bool
	blocked    atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

func (s *rodSession) Navigate(target string) error {
	if !s.referer {
		s.setReferer(target)
		s.referer = true
	}

	p := s.page
	if s.navTimeout > 0 {
		p = s.page.Timeout(s.navTimeout)
		defer p.CancelTimeout()
	}
	if err := p.Navigate(target); err != nil {
		return err
	}
	return p.WaitLoad()
}

// setReferer makes the first request look like it came from a search engine.
func (s *rodSession) setReferer(target string) {
	u, err := url.Parse(target)
	if err != nil {
		return
	}
	headers := map[string]string{
		"Referer": "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname()),
	}
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(s.page)
}

func (s *rodSession) ScrollBy(containerID string, dy int) error {
	res, err := s.page.Eval(scrollJS, containerID, dy)
	if err != nil {
		return err
	}
	if !res.Value.Bool() {
		return fmt.Errorf("results container #%s: %w", containerID, ErrElementNotFound)
	}
	return nil
}

// WaitSettled waits for the DOM to stop changing. WaitRequestIdle is not
// used: it needs the Fetch domain, which the hijack router already holds.
func (s *rodSession) WaitSettled(timeout time.Duration) error {
	p := s.page.Timeout(timeout)
	defer p.CancelTimeout()

	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		if ctxErr := s.page.GetContext().Err(); ctxErr != nil {
			return ctxErr
		}
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}
	return nil
}

func (s *rodSession) Cards(selector string) ([]Card, error) {
	els, err := s.page.Elements(selector)
	if err != nil {
		return nil, err
	}
	cards := make([]Card, len(els))
	for i, el := range els {
		cards[i] = rodCard{el: el}
	}
	return cards, nil
}

// ClickNext clicks the next-page control and waits for the network to go
// almost idle. Pagination that never fires lifecycle events (client-side
// routing) is not an error: waiting stops after the navigation timeout and
// the following scroll phase waits for the new cards.
func (s *rodSession) ClickNext(selector string) (bool, error) {
	els, err := s.page.Elements(selector)
	if err != nil {
		return false, err
	}
	if len(els) == 0 {
		return false, nil
	}

	p := s.page
	if s.navTimeout > 0 {
		p = s.page.Timeout(s.navTimeout)
		defer p.CancelTimeout()
	}
	wait := p.WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)

	if err := els[0].Context(p.GetContext()).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, fmt.Errorf("click next page: %w", err)
	}
	wait()

	if err := s.page.GetContext().Err(); err != nil {
		return false, err
	}
	return true, nil
}

// Close stops request interception, closes the browser, kills the process
// and removes its temporary profile. Safe to call more than once.
func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.router != nil {
			if err := s.router.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("stop hijack router: %w", err))
			}
		}
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close browser: %w", err))
			}
		}
		releaseLauncher(s.launcher)
		if n := s.blocked.Load(); n > 0 {
			slog.Debug("session closed", "blockedRequests", n)
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// releaseLauncher kills the browser process, if one was started, and
// removes its temporary profile. Cleanup waits for the process to exit,
// so it is only called when there is a process.
func releaseLauncher(l *launcher.Launcher) {
	if l.PID() != 0 {
		l.Kill()
		l.Cleanup()
		return
	}
	if dir := l.Get(flags.UserDataDir); dir != "" {
		_ = os.RemoveAll(dir)
	}
}

// rodCard is a listing card backed by a live DOM element.
type rodCard struct {
	el *rod.Element
}

// Text does not wait for the element to appear: the card is already
// rendered, so an absent sub-element is a hard miss.
func (c rodCard) Text(selector string) (string, error) {
	els, err := c.el.Elements(selector)
	if err != nil {
		return "", err
	}
	if len(els) == 0 {
		return "", fmt.Errorf("%s: %w", selector, ErrElementNotFound)
	}
	return els[0].Text()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
