package http

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/craftxbox/wplace-downloader/internal/proxy"
)

// ErrInvalidRoute is returned by NewClient when a route cannot be applied.
var ErrInvalidRoute = errors.New("http: invalid route")

// DefaultBaseURL is the tile server used when none is configured.
const DefaultBaseURL = "https://backend.wplace.live"

// Options configures the tile client.
type Options struct {
	// BaseURL is the tile server root, without the files/s0/tiles path.
	// Default: DefaultBaseURL
	BaseURL string

	// Timeout for individual requests.
	// Default: 30s
	Timeout time.Duration

	// Headers are sent with every request.
	Headers map[string]string

	// DefaultRetryDelay is used when the server gives no usable Retry-After.
	// Default: 10s
	DefaultRetryDelay time.Duration

	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 4
	MaxIdleConnsPerHost int
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		BaseURL:             DefaultBaseURL,
		Timeout:             30 * time.Second,
		DefaultRetryDelay:   10 * time.Second,
		MaxIdleConnsPerHost: 4,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.BaseURL == "" {
		o.BaseURL = d.BaseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.DefaultRetryDelay <= 0 {
		o.DefaultRetryDelay = d.DefaultRetryDelay
	}
	if o.MaxIdleConnsPerHost <= 0 {
		o.MaxIdleConnsPerHost = d.MaxIdleConnsPerHost
	}
}

// Client fetches tiles through a single egress route.
type Client struct {
	client    *http.Client
	transport *http.Transport
	opts      Options
	route     *proxy.Proxy
}

// NewClient creates a client bound to route. A nil route connects directly.
func NewClient(opts Options, route *proxy.Proxy) (*Client, error) {
	opts.applyDefaults()

	dialer := &net.Dialer{
		Timeout:   opts.Timeout,
		KeepAlive: 30 * time.Second,
	}

	// The transport may still replay a GET once when a reused idle
	// connection breaks before any response; every status the server
	// answers with goes back to the caller.
	transport := &http.Transport{
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		ForceAttemptHTTP2:   true,
	}

	if route != nil {
		switch route.Kind {
		case proxy.KindHTTP, proxy.KindHTTPS:
			u, err := url.Parse(route.URL)
			if err != nil || u.Host == "" {
				return nil, fmt.Errorf("%w: proxy url %q", ErrInvalidRoute, route.URL)
			}
			if route.Username != "" || route.Password != "" {
				// Go derives the basic Proxy-Authorization header from the
				// URL user, for plain requests and CONNECT tunnels alike.
				u.User = url.UserPassword(route.Username, route.Password)
			}
			transport.Proxy = http.ProxyURL(u)
		case proxy.KindSourceIP:
			ip := net.ParseIP(route.URL)
			if ip == nil {
				return nil, fmt.Errorf("%w: source address %q", ErrInvalidRoute, route.URL)
			}
			dialer.LocalAddr = &net.TCPAddr{IP: ip}
		default:
			return nil, fmt.Errorf("%w: kind %q", ErrInvalidRoute, route.Kind)
		}
	}
	transport.DialContext = dialer.DialContext

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		transport: transport,
		opts:      opts,
		route:     route,
	}, nil
}

// Route returns the egress route the client was built for.
func (c *Client) Route() *proxy.Proxy {
	return c.route
}

// TileURL returns the URL of the tile at (x, y).
func (c *Client) TileURL(x, y int) string {
	return fmt.Sprintf("%s/files/s0/tiles/%d/%d.png", strings.TrimSuffix(c.opts.BaseURL, "/"), x, y)
}

// Fetch performs one GET for the tile at (x, y) and classifies the result.
func (c *Client) Fetch(ctx context.Context, x, y int) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.TileURL(x, y), nil)
	if err != nil {
		return Outcome{Kind: Fatal, Err: fmt.Errorf("create request: %w", err)}
	}
	for k, v := range c.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{Kind: Fatal, Err: ctx.Err()}
		}
		return Outcome{Kind: Retryable, Delay: c.opts.DefaultRetryDelay, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{Kind: Fatal, Status: resp.StatusCode, Err: ctx.Err()}
			}
			// A body cut short is a transport failure.
			return Outcome{Kind: Retryable, Status: resp.StatusCode, Delay: c.opts.DefaultRetryDelay, Err: fmt.Errorf("read body: %w", err)}
		}
		return Outcome{Kind: Saved, Status: resp.StatusCode, Body: body}
	case http.StatusNotFound:
		return Outcome{Kind: Empty, Status: resp.StatusCode}
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Outcome{
			Kind:   Retryable,
			Status: resp.StatusCode,
			Delay:  ParseRetryAfter(resp.Header.Get("Retry-After"), c.opts.DefaultRetryDelay),
			Err:    fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

// ParseRetryAfter parses a Retry-After value given in whole seconds.
// Missing or malformed values return def.
func ParseRetryAfter(header string, def time.Duration) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return def
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}
