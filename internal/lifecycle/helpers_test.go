package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"casebook/internal/blob"
	"casebook/internal/cache"
	"casebook/internal/labels"
	"casebook/internal/store"
)

var errInjected = errors.New("injected failure")

// faultyBlobs fails Put or Delete for keys under configured prefixes.
type faultyBlobs struct {
	*blob.MemoryStore

	mu         sync.Mutex
	failPut    []string
	failDelete []string
}

func newFaultyBlobs() *faultyBlobs {
	return &faultyBlobs{MemoryStore: blob.NewMemoryStore()}
}

func (f *faultyBlobs) FailPut(prefix string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPut = append(f.failPut, prefix)
}

func (f *faultyBlobs) FailDelete(prefix string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDelete = append(f.failDelete, prefix)
}

func (f *faultyBlobs) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPut, f.failDelete = nil, nil
}

func matchesAny(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func (f *faultyBlobs) Put(ctx context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	fail := matchesAny(key, f.failPut)
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.MemoryStore.Put(ctx, key, data, contentType)
}

func (f *faultyBlobs) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	fail := matchesAny(key, f.failDelete)
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.MemoryStore.Delete(ctx, key)
}

type fakeDocs struct {
	err   error
	calls atomic.Int32
}

func (d *fakeDocs) GenerateCaseStudyDocx(_ context.Context, _ store.Questionnaire, _ labels.Set, folderName string) ([]byte, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return []byte("full:" + folderName), nil
}

func (d *fakeDocs) GenerateOnePagerDocx(_ context.Context, _ store.Questionnaire, _ labels.Set, folderName string) ([]byte, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return []byte("one:" + folderName), nil
}

type failingCatalog struct{}

func (failingCatalog) Catalog(context.Context) (labels.Set, error) {
	return nil, errors.New("catalog offline")
}

type harness struct {
	engine *Engine
	blobs  *faultyBlobs
	docs   *fakeDocs
	hook   *test.Hook
	clock  *time.Time
}

// newHarness builds an engine whose cache never expires on its own, so any
// fresh listing after a mutation proves an explicit invalidation.
func newHarness(t *testing.T, mutate ...func(*Deps)) *harness {
	t.Helper()
	blobs := newFaultyBlobs()
	docs := &fakeDocs{}
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	h := &harness{blobs: blobs, docs: docs, hook: hook, clock: &now}

	deps := Deps{
		Blobs:      blobs,
		Catalog:    labels.StaticCatalog{},
		Documents:  docs,
		Logger:     logger,
		Registerer: prometheus.NewRegistry(),
		Now:        func() time.Time { return *h.clock },
	}
	deps.Cache = cache.New(store.NewCaseStudyStore(blobs).ListSummaries, 24*time.Hour, cache.WithLogger(logger))
	for _, m := range mutate {
		m(&deps)
	}
	h.engine = New(deps)
	return h
}

func (h *harness) tick() {
	*h.clock = h.clock.Add(time.Minute)
}

func payload(title string, rawLabels string) store.FormPayload {
	p := store.FormPayload{
		Title: title,
		Questionnaire: store.Questionnaire{
			BasicInfo: map[string]any{"title": title},
			Content:   map[string]any{"challenge": "legacy reporting"},
		},
	}
	if rawLabels != "" {
		p.Labels = json.RawMessage(rawLabels)
	}
	return p
}

func (h *harness) submittedDraft(t *testing.T, title, rawLabels string) store.Draft {
	t.Helper()
	ctx := context.Background()
	d, err := h.engine.Create(ctx, SaveDraftInput{Payload: payload(title, rawLabels)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.tick()
	d, err = h.engine.SubmitForReview(ctx, d.ID, payload(title, rawLabels))
	if err != nil {
		t.Fatalf("SubmitForReview: %v", err)
	}
	h.tick()
	return d
}

// primeCache loads the listing so later reads are served from memory unless
// something invalidates it.
func (h *harness) primeCache(t *testing.T) []store.Summary {
	t.Helper()
	items, err := h.engine.ListCaseStudies(context.Background())
	if err != nil {
		t.Fatalf("ListCaseStudies: %v", err)
	}
	return items
}

func findSummary(items []store.Summary, folder string) (store.Summary, bool) {
	for _, item := range items {
		if item.FolderName == folder {
			return item, true
		}
	}
	return store.Summary{}, false
}
