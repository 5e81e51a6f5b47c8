// Package testutils provides shared test infrastructure: a scripted tile
// server, PNG fixtures and, for integration tests, a Minio container.
package testutils

import (
	"bytes"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
)

// Coord is a tile coordinate.
type Coord struct{ X, Y int }

// Response is what the tile server answers for one request.
type Response struct {
	Status     int
	Body       []byte
	RetryAfter string
	Delay      time.Duration
}

// TileHandler decides the response for the attempt-th request (starting at
// 1) of the tile at (x, y).
type TileHandler func(x, y, attempt int) Response

// TileServer is an httptest server speaking the tile endpoint layout
// /files/s0/tiles/{x}/{y}.png.
type TileServer struct {
	*httptest.Server

	handler TileHandler

	mu       sync.Mutex
	requests []Coord
	attempts map[Coord]int
}

// StartTileServer starts a tile server; it is closed when the test ends.
func StartTileServer(t *testing.T, handler TileHandler) *TileServer {
	t.Helper()

	ts := &TileServer{
		handler:  handler,
		attempts: make(map[Coord]int),
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(ts.serve))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *TileServer) serve(w http.ResponseWriter, r *http.Request) {
	c, ok := parseTilePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	ts.mu.Lock()
	ts.requests = append(ts.requests, c)
	ts.attempts[c]++
	attempt := ts.attempts[c]
	ts.mu.Unlock()

	resp := ts.handler(c.X, c.Y, attempt)
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}
	if resp.RetryAfter != "" {
		w.Header().Set("Retry-After", resp.RetryAfter)
	}
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}

// Requests returns the coordinates requested so far, in arrival order.
func (ts *TileServer) Requests() []Coord {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]Coord, len(ts.requests))
	copy(out, ts.requests)
	return out
}

// Attempts returns how often the tile at (x, y) was requested.
func (ts *TileServer) Attempts(x, y int) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.attempts[Coord{x, y}]
}

func parseTilePath(p string) (Coord, bool) {
	rest, ok := strings.CutPrefix(p, "/files/s0/tiles/")
	if !ok {
		return Coord{}, false
	}
	xs, ys, ok := strings.Cut(strings.TrimSuffix(rest, ".png"), "/")
	if !ok {
		return Coord{}, false
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return Coord{}, false
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return Coord{}, false
	}
	return Coord{x, y}, true
}

// SolidPNG encodes a size x size PNG filled with c.
func SolidPNG(t *testing.T, size int, c color.NRGBA) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(size, size, c), imaging.PNG); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// CoordColor derives a distinct opaque color from a coordinate.
func CoordColor(x, y int) color.NRGBA {
	return color.NRGBA{R: uint8(x * 37), G: uint8(y * 59), B: uint8((x + y) * 11), A: 255}
}
