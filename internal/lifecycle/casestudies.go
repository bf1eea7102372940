package lifecycle

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"casebook/internal/labels"
	"casebook/internal/store"
)

// Publish moves an approved case study to published. ref is a folder name or
// case-study id.
func (e *Engine) Publish(ctx context.Context, ref string) (store.CaseStudy, error) {
	item, unlock, err := e.lockCaseStudy(ctx, ref)
	if err != nil {
		return store.CaseStudy{}, err
	}
	defer unlock()

	if item.Status != store.StatusApproved {
		return store.CaseStudy{}, &InvalidTransitionError{Ref: item.FolderName, From: item.Status, To: store.StatusPublished}
	}

	now := e.timestamp()
	item.Status = store.StatusPublished
	item.PublishedAt = &now
	item.UpdatedAt = now
	if err := e.caseStudies.Put(ctx, item); err != nil {
		return store.CaseStudy{}, &BackingStoreError{Op: "write case study metadata", Err: err}
	}
	e.cache.Invalidate(ctx)
	e.search.Index(item.Summary())

	e.metrics.transitions.WithLabelValues(string(store.StatusPublished)).Inc()
	e.log.WithField("folder", item.FolderName).Info("case study published")
	return item, nil
}

// UpdateCaseStudy edits a case study in place. The folder name, original
// title and status are kept; labels are validated again and the documents are
// regenerated.
func (e *Engine) UpdateCaseStudy(ctx context.Context, ref string, payload store.FormPayload) (store.CaseStudy, error) {
	payload, submitted, err := checkPayload(payload)
	if err != nil {
		return store.CaseStudy{}, err
	}

	item, unlock, err := e.lockCaseStudy(ctx, ref)
	if err != nil {
		return store.CaseStudy{}, err
	}
	defer unlock()

	item.Title = payload.Title
	item.Labels = labels.Validate(submitted, e.currentCatalog(ctx))
	item.CustomMetrics = payload.CustomMetrics
	if item.CustomMetrics == nil {
		item.CustomMetrics = []store.CustomMetric{}
	}
	item.Questionnaire = payload.Questionnaire
	item.UpdatedAt = e.timestamp()

	if err := e.caseStudies.Put(ctx, item); err != nil {
		return store.CaseStudy{}, &BackingStoreError{Op: "write case study metadata", Err: err}
	}
	docErr := e.writeDocuments(ctx, item)
	e.cache.Invalidate(ctx)
	if docErr != nil {
		return store.CaseStudy{}, docErr
	}
	e.search.Index(item.Summary())

	e.log.WithFields(logrus.Fields{"folder": item.FolderName, "title": item.Title}).Info("case study updated")
	return item, nil
}

// lockCaseStudy resolves ref, locks the folder and reloads the record under
// the lock.
func (e *Engine) lockCaseStudy(ctx context.Context, ref string) (store.CaseStudy, func(), error) {
	item, err := e.resolveCaseStudy(ctx, ref)
	if err != nil {
		return store.CaseStudy{}, nil, err
	}
	unlock, err := e.lock(ctx, "case-study:"+item.FolderName)
	if err != nil {
		return store.CaseStudy{}, nil, err
	}
	item, err = e.resolveCaseStudy(ctx, item.FolderName)
	if err != nil {
		unlock()
		return store.CaseStudy{}, nil, err
	}
	return item, unlock, nil
}

func (e *Engine) GetCaseStudy(ctx context.Context, ref string) (store.CaseStudy, error) {
	return e.resolveCaseStudy(ctx, ref)
}

// ListCaseStudies reads the listing through the cache.
func (e *Engine) ListCaseStudies(ctx context.Context) ([]store.Summary, error) {
	summaries, err := e.cache.Read(ctx)
	if err != nil {
		return nil, &BackingStoreError{Op: "list case studies", Err: err}
	}
	return summaries, nil
}

// Orphans reports drafts that already became a case study but were never
// deleted. Nothing is removed.
func (e *Engine) Orphans(ctx context.Context) ([]store.Draft, error) {
	items, err := e.caseStudies.List(ctx)
	if err != nil {
		return nil, &BackingStoreError{Op: "list case studies", Err: err}
	}
	decided := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.OriginalDraftID != "" {
			decided[item.OriginalDraftID] = struct{}{}
		}
	}

	drafts, err := e.drafts.List(ctx)
	if err != nil {
		return nil, &BackingStoreError{Op: "list drafts", Err: err}
	}
	var orphans []store.Draft
	for _, d := range drafts {
		if _, ok := decided[d.ID]; ok {
			orphans = append(orphans, d)
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].ID < orphans[j].ID })
	return orphans, nil
}
