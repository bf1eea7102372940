package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"casebook/internal/blob"
	"casebook/internal/cache"
	"casebook/internal/config"
	"casebook/internal/export"
	"casebook/internal/httpapi"
	"casebook/internal/labels"
	"casebook/internal/lifecycle"
	"casebook/internal/lock"
	"casebook/internal/logging"
	"casebook/internal/search"
	"casebook/internal/store"
)

// runtime holds the wired dependencies shared by every command.
type runtime struct {
	cfg      config.Config
	log      *logrus.Logger
	registry *prometheus.Registry
	blobs    blob.Store
	catalog  labels.CatalogProvider
	db       *sql.DB
	docs     *export.PandocGenerator
	search   *search.Service
	engine   *lifecycle.Engine
	checks   map[string]httpapi.Pinger
	closers  []func()
}

// openRuntime is swapped in tests for an in-memory runtime.
var openRuntime = newRuntime

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(rootFlags.envFiles...)
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	rt := &runtime{
		cfg:      cfg,
		log:      log,
		registry: prometheus.NewRegistry(),
		checks:   map[string]httpapi.Pinger{},
	}
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := rt.openBlobs(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.openCatalog(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	var locker lock.Locker = lock.NewLocalLocker()
	var peer cache.Peer = cache.NewBlobPeer(rt.blobs)
	if cfg.RedisURL != "" {
		redisLocker, err := lock.NewRedisLocker(cfg.RedisURL, cfg.LockTTL, log)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = redisLocker.Close() })
		rt.checks["redis"] = redisLocker
		locker = redisLocker
		peer = cache.NewRedisPeer(redisLocker.Client())
		log.Info("using redis for locks and listing invalidation")
	}

	var docs export.Generator
	if cfg.DocumentsEnabled {
		rt.docs = export.NewPandocGenerator(cfg.PandocPath)
		if err := rt.docs.Available(); err != nil {
			log.WithError(err).Warn("document generation will fail until pandoc is installed")
		}
		docs = rt.docs
	}

	var meili *search.Meili
	if cfg.MeiliURL != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		rt.closers = append(rt.closers, meili.Close)
	}
	var engine *lifecycle.Engine
	rt.search = search.NewService(meili, func(ctx context.Context) ([]store.Summary, error) {
		return engine.ListCaseStudies(ctx)
	}, log)

	engine = lifecycle.New(lifecycle.Deps{
		Blobs:      rt.blobs,
		Catalog:    rt.catalog,
		CacheTTL:   cfg.CacheTTL,
		CachePeer:  peer,
		Documents:  docs,
		Locker:     locker,
		Search:     rt.search,
		Logger:     log,
		Registerer: rt.registry,
	})
	rt.engine = engine
	return rt, nil
}

func (rt *runtime) openBlobs(ctx context.Context) error {
	switch rt.cfg.Blob.Backend {
	case "memory":
		mem := blob.NewMemoryStore()
		rt.blobs = mem
		rt.checks["blob"] = mem
		rt.log.Warn("using in-memory blob storage; nothing survives this process")
	default:
		opts := rt.cfg.Blob
		minioStore, err := blob.NewMinioStore(ctx, blob.MinioOptions{
			Endpoint:  opts.Endpoint,
			AccessKey: opts.AccessKey,
			SecretKey: opts.SecretKey,
			Bucket:    opts.Bucket,
			Region:    opts.Region,
			UseSSL:    opts.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("blob storage connection failed: %w", err)
		}
		rt.blobs = minioStore
		rt.checks["blob"] = minioStore
	}
	return nil
}

func (rt *runtime) openCatalog(ctx context.Context) error {
	switch rt.cfg.Catalog.Source {
	case "file":
		rt.catalog = labels.NewFileCatalog(rt.cfg.Catalog.File)
	case "postgres":
		db, err := rt.database(ctx)
		if err != nil {
			return err
		}
		rt.catalog = labels.NewPostgresCatalog(db)
	case "none":
		rt.catalog = labels.StaticCatalog{}
	default:
		rt.catalog = labels.NewBlobCatalog(rt.blobs)
	}
	return nil
}

// database opens the Postgres pool on first use.
func (rt *runtime) database(ctx context.Context) (*sql.DB, error) {
	if rt.db != nil {
		return rt.db, nil
	}
	db, err := store.Open(ctx, rt.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt.db = db
	rt.closers = append(rt.closers, func() { _ = db.Close() })
	rt.checks["postgres"] = pingerFunc(db.PingContext)
	return db, nil
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}
