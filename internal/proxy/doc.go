// Package proxy holds the egress routes tiles are fetched through.
//
// A route is either an HTTP(S) proxy, optionally with basic-auth
// credentials, or a local source address the connection is bound to.
// An empty pool means every fetch goes out over the direct connection.
//
// # Load balancing
//
// [Pool] tracks how many workers currently use each route. Workers take
// the least used route when they start and give it back when they finish:
//
//	pool := proxy.NewPool(proxies)
//
//	p, idx := pool.AcquireLeastUsed() // nil, -1 when the pool is empty
//	defer pool.Release(p)
//
// Ties are broken by the lowest index, so N acquisitions without releases
// spread evenly across the pool.
package proxy
