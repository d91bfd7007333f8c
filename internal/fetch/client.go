// Package fetch implements the upstream HTTP client shared by matchers and
// extractors: page fetches through Colly, JSON/form API calls, and HEAD-style
// redirect resolution, with an optional egress proxy for geo-restricted
// sources.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/97.0.4692.99 Safari/537.36"

// Config controls client behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// ProxyURL is the egress proxy for sources that require one. When empty,
	// proxied requests silently go direct.
	ProxyURL string
}

// Response is the captured upstream reply.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client issues upstream requests. Page GETs run through a Colly collector;
// API calls and redirect probes use net/http directly.
type Client struct {
	cfg           Config
	direct        *http.Client
	proxied       *http.Client
	baseCollector *colly.Collector
	proxyRT       http.RoundTripper
	directRT      http.RoundTripper
}

type requestOptions struct {
	headers    map[string]string
	cookies    map[string]string
	query      url.Values
	proxied    bool
	noRedirect bool
}

// Option customizes a single request.
type Option func(*requestOptions)

// WithHeaders adds request headers.
func WithHeaders(h map[string]string) Option {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string, len(h))
		}
		for k, v := range h {
			o.headers[k] = v
		}
	}
}

// WithCookies attaches cookies to the request.
func WithCookies(c map[string]string) Option {
	return func(o *requestOptions) { o.cookies = c }
}

// WithQuery appends query parameters to the URL.
func WithQuery(q url.Values) Option {
	return func(o *requestOptions) { o.query = q }
}

// ViaProxy routes the request through the configured egress proxy, falling
// back to the direct transport when no proxy is configured.
func ViaProxy() Option {
	return func(o *requestOptions) { o.proxied = true }
}

// NoRedirect stops redirect following so callers can inspect 3xx replies.
func NoRedirect() Option {
	return func(o *requestOptions) { o.noRedirect = true }
}

// New builds a Client. An invalid proxy URL is an error rather than a silent
// fallback.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	directRT := newTransport(nil)
	proxyRT := directRT
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		proxyRT = newTransport(proxyURL)
	}

	base := colly.NewCollector(colly.Async(false))
	base.UserAgent = cfg.UserAgent
	base.IgnoreRobotsTxt = true
	base.SetRequestTimeout(cfg.Timeout)

	return &Client{
		cfg:           cfg,
		direct:        &http.Client{Timeout: cfg.Timeout, Transport: directRT},
		proxied:       &http.Client{Timeout: cfg.Timeout, Transport: proxyRT},
		baseCollector: base,
		directRT:      directRT,
		proxyRT:       proxyRT,
	}, nil
}

func newTransport(proxy *url.URL) *http.Transport {
	t := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if proxy != nil {
		t.Proxy = http.ProxyURL(proxy)
	}
	return t
}

// Get fetches a page through Colly and returns the captured response. Non-2xx
// replies are returned as responses, not errors, so extractors can branch on
// status codes like an age-gate 302.
func (c *Client) Get(ctx context.Context, rawURL string, opts ...Option) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch canceled: %w", err)
	}
	o := buildOptions(opts)

	target, err := withQuery(rawURL, o.query)
	if err != nil {
		return nil, err
	}

	collector := c.baseCollector.Clone()
	collector.UserAgent = c.cfg.UserAgent
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(c.cfg.Timeout)
	if o.proxied {
		collector.WithTransport(c.proxyRT)
	} else {
		collector.WithTransport(c.directRT)
	}
	if o.noRedirect {
		collector.SetRedirectHandler(func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		})
	}

	if len(o.cookies) > 0 {
		cookies := make([]*http.Cookie, 0, len(o.cookies))
		for k, v := range o.cookies {
			cookies = append(cookies, &http.Cookie{Name: k, Value: v})
		}
		if err := collector.SetCookies(target, cookies); err != nil {
			return nil, fmt.Errorf("set cookies: %w", err)
		}
	}

	var (
		captured *Response
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		captured = &Response{StatusCode: r.StatusCode, Body: r.Body}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			captured = &Response{StatusCode: r.StatusCode, Body: r.Body}
			return
		}
		fetchErr = err
	})

	hdr := http.Header{}
	for k, v := range o.headers {
		hdr.Set(k, v)
	}
	if err := collector.Request(http.MethodGet, target, nil, nil, hdr); err != nil && captured == nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	collector.Wait()
	if captured == nil {
		if fetchErr != nil {
			return nil, fmt.Errorf("get %s: %w", rawURL, fetchErr)
		}
		return nil, fmt.Errorf("get %s: no response", rawURL)
	}
	return captured, nil
}

// GetJSON issues a GET against an API endpoint and decodes the JSON reply.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any, opts ...Option) error {
	return c.doJSON(ctx, http.MethodGet, rawURL, nil, out, opts)
}

// PostJSON posts a JSON payload and decodes the JSON reply.
func (c *Client) PostJSON(ctx context.Context, rawURL string, payload, out any, opts ...Option) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return c.doJSON(ctx, http.MethodPost, rawURL, body, out, opts)
}

// PostForm posts urlencoded form data and decodes the JSON reply.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, out any, opts ...Option) error {
	o := buildOptions(opts)
	target, err := withQuery(rawURL, o.query)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.send(req, o, out)
}

func (c *Client) doJSON(ctx context.Context, method, rawURL string, body []byte, out any, opts []Option) error {
	o := buildOptions(opts)
	target, err := withQuery(rawURL, o.query)
	if err != nil {
		return err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, o, out)
}

func (c *Client) send(req *http.Request, o requestOptions, out any) error {
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}
	for k, v := range o.cookies {
		req.AddCookie(&http.Cookie{Name: k, Value: v})
	}

	client := c.direct
	if o.proxied {
		client = c.proxied
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Host, err)
	}
	return nil
}

// RedirectLocation resolves one hop of a shortened link: it issues a GET
// without following redirects and returns the Location header value.
func (c *Client) RedirectLocation(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	client := &http.Client{
		Timeout:   c.cfg.Timeout,
		Transport: c.directRT,
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", fmt.Errorf("resolve %s: no location header", rawURL)
	}
	return loc, nil
}

func buildOptions(opts []Option) requestOptions {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func withQuery(rawURL string, q url.Values) (string, error) {
	if len(q) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	existing := u.Query()
	for k, vs := range q {
		for _, v := range vs {
			existing.Add(k, v)
		}
	}
	u.RawQuery = existing.Encode()
	return u.String(), nil
}
