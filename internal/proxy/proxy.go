package proxy

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
)

// Kind identifies how a route is applied to a connection.
type Kind string

const (
	// KindHTTP tunnels through an HTTP proxy.
	KindHTTP Kind = "http"
	// KindHTTPS tunnels through a proxy reached over TLS.
	KindHTTPS Kind = "https"
	// KindSourceIP binds outgoing connections to a local address.
	KindSourceIP Kind = "srcip"
)

// ErrUnknownKind is returned by ParseKind for unsupported route types.
var ErrUnknownKind = errors.New("proxy: unknown kind")

// ParseKind parses a route type from configuration.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "http", "":
		return KindHTTP, nil
	case "https":
		return KindHTTPS, nil
	case "srcip", "source-ip", "source_ip":
		return KindSourceIP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Proxy is one egress route. For KindSourceIP, URL holds the local IP.
type Proxy struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Kind     Kind   `yaml:"type"`
}

// Validate checks that the route can be turned into a transport.
func (p Proxy) Validate() error {
	switch p.Kind {
	case KindHTTP, KindHTTPS:
		u, err := url.Parse(p.URL)
		if err != nil {
			return fmt.Errorf("proxy: parse %q: %w", p.URL, err)
		}
		if u.Host == "" {
			return fmt.Errorf("proxy: %q has no host", p.URL)
		}
	case KindSourceIP:
		if net.ParseIP(p.URL) == nil {
			return fmt.Errorf("proxy: %q is not an IP address", p.URL)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}
	return nil
}

// String returns the route without credentials, for logging.
func (p *Proxy) String() string {
	if p == nil {
		return "direct"
	}
	return string(p.Kind) + "://" + strings.TrimPrefix(strings.TrimPrefix(p.URL, "http://"), "https://")
}

// Pool is a fixed set of routes with per-route utilization counters.
type Pool struct {
	proxies []Proxy

	mu    sync.Mutex
	usage []int
}

// NewPool creates a pool over proxies. The slice is copied.
func NewPool(proxies []Proxy) *Pool {
	p := &Pool{
		proxies: make([]Proxy, len(proxies)),
		usage:   make([]int, len(proxies)),
	}
	copy(p.proxies, proxies)
	return p
}

// Len returns the number of routes in the pool.
func (p *Pool) Len() int {
	return len(p.proxies)
}

// AcquireLeastUsed returns the route with the fewest current users and
// increments its counter. It returns nil and -1 when the pool is empty,
// meaning the caller should connect directly.
func (p *Pool) AcquireLeastUsed() (*Proxy, int) {
	if len(p.proxies) == 0 {
		return nil, -1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	best := 0
	for i := 1; i < len(p.usage); i++ {
		if p.usage[i] < p.usage[best] {
			best = i
		}
	}
	p.usage[best]++
	return &p.proxies[best], best
}

// Release gives a route acquired with AcquireLeastUsed back to the pool.
// Releasing nil or a route that does not belong to the pool does nothing.
func (p *Pool) Release(proxy *Proxy) {
	if proxy == nil {
		return
	}

	idx := p.indexOf(proxy)
	if idx < 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.usage[idx] > 0 {
		p.usage[idx]--
	}
}

// Usage returns a snapshot of the utilization counters.
func (p *Pool) Usage() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.usage))
	copy(out, p.usage)
	return out
}

// indexOf finds proxy by identity first and falls back to value equality,
// so a copy of a pool entry still releases the right counter.
func (p *Pool) indexOf(proxy *Proxy) int {
	for i := range p.proxies {
		if &p.proxies[i] == proxy {
			return i
		}
	}
	for i := range p.proxies {
		if p.proxies[i] == *proxy {
			return i
		}
	}
	return -1
}
