// Package cache holds the read-through listing of case-study summaries.
//
// A Cache is fresh while its last resync is younger than the TTL, no
// Invalidate happened since the resync started and, with a Peer, the shared
// version still matches the one the resync loaded. Every mutation of the
// listing must call Invalidate before it reports success.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"casebook/internal/store"
)

// Loader lists the backing store. CaseStudyStore.ListSummaries satisfies it.
type Loader func(ctx context.Context) ([]store.Summary, error)

type Cache struct {
	load    Loader
	ttl     time.Duration
	now     func() time.Time
	log     logrus.FieldLogger
	metrics *metrics
	peer    Peer

	mu          sync.Mutex
	data        []store.Summary
	lastUpdated *time.Time
	generation  uint64
	version     string

	group singleflight.Group
}

type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Cache) { c.log = log }
}

// WithRegisterer registers the cache metrics with reg. Without it they stay
// unregistered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Cache) { c.metrics = newMetrics(reg) }
}

// WithPeer shares invalidations with other processes. A nil peer keeps the
// cache process-local.
func WithPeer(p Peer) Option {
	return func(c *Cache) { c.peer = p }
}

func New(load Loader, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		load: load,
		ttl:  ttl,
		now:  time.Now,
		log:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = newMetrics(nil)
	}
	return c
}

// Read returns the listing, resyncing from the backing store when stale. The
// returned slice is a copy the caller may modify. A caller whose ctx ends
// stops waiting, but a resync shared with other callers runs to completion.
func (c *Cache) Read(ctx context.Context) ([]store.Summary, error) {
	version, versionOK := c.peerVersion(ctx)

	c.mu.Lock()
	if c.freshLocked(version, versionOK) {
		data := cloneSummaries(c.data)
		c.mu.Unlock()
		c.metrics.requests.WithLabelValues("hit").Inc()
		return data, nil
	}
	gen := c.generation
	c.mu.Unlock()
	c.metrics.requests.WithLabelValues("miss").Inc()

	key := strconv.FormatUint(gen, 10) + "/" + version
	ch := c.group.DoChan(key, func() (any, error) {
		return c.resync(context.WithoutCancel(ctx), gen, version, versionOK)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneSummaries(res.Val.([]store.Summary)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) freshLocked(version string, versionOK bool) bool {
	if c.lastUpdated == nil || c.now().Sub(*c.lastUpdated) >= c.ttl {
		return false
	}
	return c.peer == nil || (versionOK && version == c.version)
}

// peerVersion reads the shared version. Without a peer it reports ok with an
// empty version; an unreachable peer reports not ok, which forces a resync.
func (c *Cache) peerVersion(ctx context.Context) (string, bool) {
	if c.peer == nil {
		return "", true
	}
	v, err := c.peer.Version(ctx)
	if err != nil {
		c.log.WithError(err).Warn("listing version unavailable, resyncing")
		return "", false
	}
	return v, true
}

// Invalidate marks the listing stale here and, through the peer, in every
// other process. A resync already in flight still answers its own callers but
// no longer marks the cache fresh. A failed peer bump is logged; other
// processes then catch up within the TTL.
func (c *Cache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.lastUpdated = nil
	c.generation++
	c.mu.Unlock()
	c.metrics.invalidations.Inc()

	if c.peer == nil {
		return
	}
	bumpCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.peer.Bump(bumpCtx); err != nil {
		c.log.WithError(err).Error("publish listing invalidation")
	}
}

func (c *Cache) resync(ctx context.Context, gen uint64, version string, versionOK bool) ([]store.Summary, error) {
	start := c.now()
	items, err := c.load(ctx)
	c.metrics.resyncSeconds.Observe(c.now().Sub(start).Seconds())
	if err != nil {
		c.log.WithError(err).Warn("case study cache resync failed")
		return nil, fmt.Errorf("resync case study listing: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		c.log.WithField("generation", gen).Debug("discarding resync overtaken by invalidation")
		return items, nil
	}
	if !versionOK {
		return items, nil
	}
	c.data = items
	c.version = version
	updated := c.now()
	c.lastUpdated = &updated
	return items, nil
}

func cloneSummaries(in []store.Summary) []store.Summary {
	out := make([]store.Summary, len(in))
	for i, s := range in {
		s.Labels = s.Labels.Clone()
		out[i] = s
	}
	return out
}
