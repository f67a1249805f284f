package prefetch

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"centros-monitor/config"
	"centros-monitor/internal/gateway"
)

// Source is the gateway slice the prefetcher needs.
type Source interface {
	ListCapturas(ctx context.Context, clienteID int64, fecha string, page, pageSize int) (*gateway.CapturaPage, error)
}

// Entry is one warmed page for a client.
type Entry struct {
	Page      *gateway.CapturaPage
	FetchedAt time.Time
}

// Cache speculatively warms page 1 of likely-next client selections. Entries
// expire by TTL and are only evicted lazily at read time.
type Cache struct {
	cfg      *config.PrefetchConfig
	src      Source
	pageSize int
	entries  *cache.Cache
	limiter  *rate.Limiter
}

// New creates a prefetch cache. pageSize is the page size warmed entries are
// fetched with. Entries only seed the first paint; the consumer refetches at
// its own page size right after, so a mismatch is short-lived.
func New(cfg *config.PrefetchConfig, src Source, pageSize int) *Cache {
	return &Cache{
		cfg:      cfg,
		src:      src,
		pageSize: pageSize,
		entries:  cache.New(cfg.TTL, 2*cfg.TTL),
		limiter:  rate.NewLimiter(rate.Limit(cfg.SweepRate), 1),
	}
}

func key(clienteID int64) string {
	return strconv.FormatInt(clienteID, 10)
}

// Warm fetches page 1 of today's captures for a client unless a fresh entry
// already exists. Failures are swallowed; a cold cache only costs a normal
// load later.
func (c *Cache) Warm(ctx context.Context, clienteID int64, fecha string) {
	if clienteID == 0 {
		return
	}
	if _, found := c.entries.Get(key(clienteID)); found {
		return
	}

	page, err := c.src.ListCapturas(ctx, clienteID, fecha, 1, c.pageSize)
	if err != nil {
		return
	}
	c.entries.Set(key(clienteID), &Entry{Page: page, FetchedAt: time.Now()}, c.cfg.TTL)
}

// Consume returns the cached entry for a client if it is still fresh,
// otherwise nil. It never refreshes; misses fall through to a normal load.
func (c *Cache) Consume(clienteID int64) *Entry {
	v, found := c.entries.Get(key(clienteID))
	if !found {
		return nil
	}
	entry := v.(*Entry)
	if time.Since(entry.FetchedAt) >= c.cfg.TTL {
		return nil
	}
	return entry
}

// Sweep warms the first SweepLimit clients in order, throttled so the sweep
// never floods the backend. Intended to run once after the client list loads.
func (c *Cache) Sweep(ctx context.Context, clientes []gateway.Cliente, fecha string) {
	limit := c.cfg.SweepLimit
	if limit > len(clientes) {
		limit = len(clientes)
	}
	for _, cl := range clientes[:limit] {
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
		c.Warm(ctx, cl.ID, fecha)
	}
	log.Printf("prefetch: warmed %d clientes", limit)
}
