package scraper

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// maxBody caps a fetched results page.
const maxBody = 10 << 20

// chromeH1Spec is a Chrome ClientHello with ALPN limited to http/1.1, so
// the server never negotiates HTTP/2 over a connection http.Transport
// treats as HTTP/1.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// HTTPLauncher creates sessions that fetch server-rendered result pages
// without a browser. Scrolling is a no-op and pagination follows the
// next-page control's href.
type HTTPLauncher struct {
	proxy   string
	timeout time.Duration
}

// NewHTTPLauncher creates an HTTPLauncher. timeout bounds each page fetch.
func NewHTTPLauncher(proxy string, timeout time.Duration) *HTTPLauncher {
	return &HTTPLauncher{proxy: proxy, timeout: timeout}
}

func (h *HTTPLauncher) Name() string { return "http" }

// Launch builds a client with its own cookie jar; cookies set by the
// first page are sent with the following ones.
func (h *HTTPLauncher) Launch(ctx context.Context) (Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		DialTLSContext:    dialTLSChrome,
		ForceAttemptHTTP2: false,
	}
	if h.proxy != "" {
		proxyURL, err := url.Parse(h.proxy)
		if err != nil {
			return nil, fmt.Errorf("httpfetch: parse proxy: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &httpSession{
		ctx:     ctx,
		timeout: h.timeout,
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}, nil
}

// httpSession holds the most recently fetched results page.
type httpSession struct {
	ctx     context.Context
	timeout time.Duration
	client  *http.Client

	current *url.URL
	doc     *goquery.Document
}

func (s *httpSession) Navigate(target string) error {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("httpfetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if s.current != nil {
		req.Header.Set("Referer", s.current.String())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("httpfetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("httpfetch: HTTP %d for %s", resp.StatusCode, target)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxBody), resp.Header.Get("Content-Type"))
	if err != nil {
		return fmt.Errorf("httpfetch: decode body: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return fmt.Errorf("httpfetch: parse body: %w", err)
	}

	s.doc = doc
	s.current = resp.Request.URL
	return nil
}

// ScrollBy only checks that the container exists; a static document has
// nothing to lazy-load.
func (s *httpSession) ScrollBy(containerID string, _ int) error {
	if s.doc == nil {
		return fmt.Errorf("httpfetch: no page loaded")
	}
	if s.doc.Find("#"+containerID).Length() == 0 {
		return fmt.Errorf("results container #%s: %w", containerID, ErrElementNotFound)
	}
	return nil
}

// WaitSettled is a no-op: a fetched document never changes.
func (s *httpSession) WaitSettled(time.Duration) error { return nil }

func (s *httpSession) Cards(selector string) ([]Card, error) {
	if s.doc == nil {
		return nil, fmt.Errorf("httpfetch: no page loaded")
	}
	sel := s.doc.Find(selector)
	cards := make([]Card, 0, sel.Length())
	sel.Each(func(_ int, card *goquery.Selection) {
		cards = append(cards, queryCard{sel: card})
	})
	return cards, nil
}

// ClickNext follows the href of the next-page control. A control without
// an href cannot be followed statically and ends pagination.
func (s *httpSession) ClickNext(selector string) (bool, error) {
	if s.doc == nil {
		return false, fmt.Errorf("httpfetch: no page loaded")
	}
	next := s.doc.Find(selector).First()
	if next.Length() == 0 {
		return false, nil
	}
	href, ok := next.Attr("href")
	if !ok {
		href, ok = next.Find("a[href]").First().Attr("href")
	}
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return false, nil
	}

	ref, err := url.Parse(href)
	if err != nil {
		return false, fmt.Errorf("httpfetch: next page href %q: %w", href, err)
	}
	if err := s.Navigate(s.current.ResolveReference(ref).String()); err != nil {
		return false, err
	}
	return true, nil
}

func (s *httpSession) Close() error {
	s.client.CloseIdleConnections()
	s.doc = nil
	return nil
}

// queryCard is a listing card backed by a parsed HTML node.
type queryCard struct {
	sel *goquery.Selection
}

// Text approximates innerText: runs of whitespace collapse to one space.
func (c queryCard) Text(selector string) (string, error) {
	found := c.sel.Find(selector).First()
	if found.Length() == 0 {
		return "", fmt.Errorf("%s: %w", selector, ErrElementNotFound)
	}
	return strings.Join(strings.Fields(found.Text()), " "), nil
}

// dialTLSChrome establishes a TLS connection presenting Chrome's fingerprint.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("httpfetch: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}
