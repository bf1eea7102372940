// Package lifecycle implements the case-study state machine: drafts are saved
// and reviewed, then approved or rejected into case studies, which may later
// be published.
//
// Approve and Reject commit in a fixed order. Loading the draft, validating
// labels, writing metadata and generating documents form the critical path;
// any failure there is returned and the transition did not happen. After the
// metadata write the listing cache is always invalidated before returning.
// Stamping the draft, copying its review comments and deleting it are best
// effort and only reported through Outcome.SideEffectFailures.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"casebook/internal/blob"
	"casebook/internal/cache"
	"casebook/internal/export"
	"casebook/internal/labels"
	"casebook/internal/lock"
	"casebook/internal/reviews"
	"casebook/internal/search"
	"casebook/internal/store"
	"casebook/internal/util"
)

const defaultCacheTTL = 5 * time.Minute

// Deps wires the engine to its collaborators. Blobs is required; the rest
// fall back to in-process defaults. CacheTTL and CachePeer configure the
// default cache when Cache is nil. Registerer receives the engine metrics;
// nil leaves them unregistered.
type Deps struct {
	Blobs      blob.Store
	Catalog    labels.CatalogProvider
	Cache      *cache.Cache
	CacheTTL   time.Duration
	CachePeer  cache.Peer
	Documents  export.Generator
	Locker     lock.Locker
	Search     *search.Service
	Logger     logrus.FieldLogger
	Registerer prometheus.Registerer
	Now        func() time.Time
}

type Engine struct {
	drafts      *store.DraftStore
	caseStudies *store.CaseStudyStore
	reviews     *reviews.Store
	catalog     labels.CatalogProvider
	cache       *cache.Cache
	docs        export.Generator
	locker      lock.Locker
	search      *search.Service
	log         logrus.FieldLogger
	metrics     *metrics
	now         func() time.Time

	newDraftID     func() string
	newCaseStudyID func() string
	newFolderName  func(title string) string
}

func New(deps Deps) *Engine {
	e := &Engine{
		drafts:         store.NewDraftStore(deps.Blobs),
		caseStudies:    store.NewCaseStudyStore(deps.Blobs),
		reviews:        reviews.NewStore(deps.Blobs),
		catalog:        deps.Catalog,
		cache:          deps.Cache,
		docs:           deps.Documents,
		locker:         deps.Locker,
		search:         deps.Search,
		log:            deps.Logger,
		metrics:        newMetrics(deps.Registerer),
		now:            deps.Now,
		newDraftID:     func() string { return util.NewID("draft") },
		newCaseStudyID: func() string { return util.NewID("cs") },
		newFolderName:  util.FolderName,
	}
	if e.catalog == nil {
		e.catalog = labels.StaticCatalog{}
	}
	if e.locker == nil {
		e.locker = lock.NewLocalLocker()
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	e.log = e.log.WithField("component", "lifecycle")
	e.drafts.WithLogger(e.log)
	e.caseStudies.WithLogger(e.log)
	if e.now == nil {
		e.now = time.Now
	}
	if e.cache == nil {
		ttl := deps.CacheTTL
		if ttl <= 0 {
			ttl = defaultCacheTTL
		}
		e.cache = cache.New(e.caseStudies.ListSummaries, ttl,
			cache.WithLogger(e.log),
			cache.WithClock(e.now),
			cache.WithRegisterer(deps.Registerer),
			cache.WithPeer(deps.CachePeer),
		)
	}
	return e
}

// Cache exposes the listing cache the engine invalidates.
func (e *Engine) Cache() *cache.Cache {
	return e.cache
}

func (e *Engine) lock(ctx context.Context, key string) (func(), error) {
	unlock, err := e.locker.Lock(ctx, key)
	if err != nil {
		return nil, &BackingStoreError{Op: "acquire lock " + key, Err: err}
	}
	return unlock, nil
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC()
}

// loadDraft maps a missing draft to NotFoundError and any other failure to
// BackingStoreError.
func (e *Engine) loadDraft(ctx context.Context, id string) (store.Draft, error) {
	draft, err := e.drafts.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Draft{}, &NotFoundError{Kind: "draft", Ref: id}
	}
	if err != nil {
		return store.Draft{}, &BackingStoreError{Op: "load draft", Err: err}
	}
	return draft, nil
}

// resolveCaseStudy accepts a folder name or a case-study id.
func (e *Engine) resolveCaseStudy(ctx context.Context, ref string) (store.CaseStudy, error) {
	item, err := e.caseStudies.Get(ctx, ref)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.CaseStudy{}, &BackingStoreError{Op: "load case study", Err: err}
	}

	items, err := e.caseStudies.List(ctx)
	if err != nil {
		return store.CaseStudy{}, &BackingStoreError{Op: "list case studies", Err: err}
	}
	for _, item := range items {
		if item.ID == ref {
			return item, nil
		}
	}
	return store.CaseStudy{}, &NotFoundError{Kind: "case study", Ref: ref}
}

// currentCatalog never fails: an unavailable catalog validates like an empty
// one, which keeps every submitted label.
func (e *Engine) currentCatalog(ctx context.Context) labels.Set {
	catalog, err := e.catalog.Catalog(ctx)
	if err != nil {
		e.log.WithError(err).Warn("label catalog unavailable, keeping submitted labels")
		return labels.Set{}
	}
	return catalog
}

func (e *Engine) sideEffect(failures []*NonFatalSideEffectError, step, ref string, err error) []*NonFatalSideEffectError {
	if err == nil {
		return failures
	}
	e.metrics.sideEffectFailures.WithLabelValues(step).Inc()
	e.log.WithError(err).WithFields(logrus.Fields{"step": step, "ref": ref}).Warn("non-fatal side effect failed")
	return append(failures, &NonFatalSideEffectError{Step: step, Ref: ref, Err: err})
}
