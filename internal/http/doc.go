// Package http fetches single tiles from the tile server.
//
// This package handles:
//   - One transport per egress route (direct, HTTP proxy, bound source address)
//   - Classifying each response into a tile [Outcome]
//   - Parsing Retry-After advice from rate-limited responses
//
// The client never retries on its own. Retrying is a decision of the
// caller, which gets the server-advised delay back in the outcome.
//
// TLS certificates are not verified; the tile server is reached over an
// unverified connection.
//
// # Usage
//
//	client, err := http.NewClient(http.DefaultOptions(), route)
//	defer client.Close()
//
//	out := client.Fetch(ctx, x, y)
//	switch out.Kind {
//	case http.Saved:     // out.Body holds the PNG
//	case http.Empty:     // 404, no tile at this coordinate
//	case http.Retryable: // wait out.Delay, then try again
//	case http.Fatal:     // out.Err
//	}
package http
