package lifecycle

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"casebook/internal/store"
)

type SaveDraftInput struct {
	// ID selects the draft to update. Empty means reuse a draft with the same
	// title or allocate a new one.
	ID      string
	Payload store.FormPayload
}

// Create saves a draft in status draft. Saving an under-review draft pulls it
// back into draft.
func (e *Engine) Create(ctx context.Context, in SaveDraftInput) (store.Draft, error) {
	payload, _, err := checkPayload(in.Payload)
	if err != nil {
		return store.Draft{}, err
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		unlockTitle, err := e.lock(ctx, "draft-title:"+payload.Title)
		if err != nil {
			return store.Draft{}, err
		}
		defer unlockTitle()

		id, err = e.reusableDraftID(ctx, payload.Title)
		if err != nil {
			return store.Draft{}, err
		}
		if id == "" {
			id = e.newDraftID()
		}
	} else if err := checkDraftID(id); err != nil {
		return store.Draft{}, err
	}

	unlock, err := e.lock(ctx, "draft:"+id)
	if err != nil {
		return store.Draft{}, err
	}
	defer unlock()

	now := e.timestamp()
	draft, err := e.loadDraft(ctx, id)
	switch err.(type) {
	case nil:
		if draft.IsTombstone() {
			return store.Draft{}, &InvalidTransitionError{Ref: id, From: draft.Status, To: store.StatusDraft}
		}
	case *NotFoundError:
		draft = store.Draft{ID: id, CreatedAt: now}
	default:
		return store.Draft{}, err
	}

	draft.Title = payload.Title
	draft.Data = payload
	draft.Status = store.StatusDraft
	draft.UpdatedAt = now
	if err := e.drafts.Put(ctx, draft); err != nil {
		return store.Draft{}, &BackingStoreError{Op: "save draft", Err: err}
	}

	e.log.WithFields(logrus.Fields{"draft": id, "title": draft.Title}).Info("draft saved")
	return draft, nil
}

// reusableDraftID finds a draft in status draft whose title matches after
// trimming. Under-review and decided drafts are never reused.
func (e *Engine) reusableDraftID(ctx context.Context, title string) (string, error) {
	drafts, err := e.drafts.List(ctx)
	if err != nil {
		return "", &BackingStoreError{Op: "list drafts", Err: err}
	}
	sort.Slice(drafts, func(i, j int) bool { return drafts[i].CreatedAt.Before(drafts[j].CreatedAt) })
	for _, d := range drafts {
		if d.Status == store.StatusDraft && strings.TrimSpace(d.Title) == title {
			return d.ID, nil
		}
	}
	return "", nil
}

// SubmitForReview stores the latest payload and moves the draft to
// under_review.
func (e *Engine) SubmitForReview(ctx context.Context, draftID string, payload store.FormPayload) (store.Draft, error) {
	payload, _, err := checkPayload(payload)
	if err != nil {
		return store.Draft{}, err
	}

	unlock, err := e.lock(ctx, "draft:"+draftID)
	if err != nil {
		return store.Draft{}, err
	}
	defer unlock()

	draft, err := e.loadDraft(ctx, draftID)
	if err != nil {
		return store.Draft{}, err
	}
	if !draft.Status.IsDraftState() {
		return store.Draft{}, &InvalidTransitionError{Ref: draftID, From: draft.Status, To: store.StatusUnderReview}
	}

	now := e.timestamp()
	draft.Title = payload.Title
	draft.Data = payload
	draft.Status = store.StatusUnderReview
	draft.SubmittedAt = &now
	draft.UpdatedAt = now
	if err := e.drafts.Put(ctx, draft); err != nil {
		return store.Draft{}, &BackingStoreError{Op: "save draft", Err: err}
	}

	e.metrics.transitions.WithLabelValues(string(store.StatusUnderReview)).Inc()
	e.log.WithField("draft", draftID).Info("draft submitted for review")
	return draft, nil
}

// Resubmit is SubmitForReview after feedback was incorporated.
func (e *Engine) Resubmit(ctx context.Context, draftID string, payload store.FormPayload) (store.Draft, error) {
	return e.SubmitForReview(ctx, draftID, payload)
}

// IncorporateFeedback returns an under-review draft to draft without touching
// its payload.
func (e *Engine) IncorporateFeedback(ctx context.Context, draftID string) (store.Draft, error) {
	unlock, err := e.lock(ctx, "draft:"+draftID)
	if err != nil {
		return store.Draft{}, err
	}
	defer unlock()

	draft, err := e.loadDraft(ctx, draftID)
	if err != nil {
		return store.Draft{}, err
	}
	if draft.Status != store.StatusUnderReview {
		return store.Draft{}, &InvalidTransitionError{Ref: draftID, From: draft.Status, To: store.StatusDraft}
	}

	draft.Status = store.StatusDraft
	draft.UpdatedAt = e.timestamp()
	if err := e.drafts.Put(ctx, draft); err != nil {
		return store.Draft{}, &BackingStoreError{Op: "save draft", Err: err}
	}

	e.metrics.transitions.WithLabelValues(string(store.StatusDraft)).Inc()
	e.log.WithField("draft", draftID).Info("feedback incorporated")
	return draft, nil
}

func (e *Engine) GetDraft(ctx context.Context, draftID string) (store.Draft, error) {
	return e.loadDraft(ctx, draftID)
}

// ListDrafts returns every stored draft, most recently updated first. Decided
// drafts whose deletion failed are included.
func (e *Engine) ListDrafts(ctx context.Context) ([]store.Draft, error) {
	drafts, err := e.drafts.List(ctx)
	if err != nil {
		return nil, &BackingStoreError{Op: "list drafts", Err: err}
	}
	sort.SliceStable(drafts, func(i, j int) bool {
		if !drafts[i].UpdatedAt.Equal(drafts[j].UpdatedAt) {
			return drafts[i].UpdatedAt.After(drafts[j].UpdatedAt)
		}
		return drafts[i].ID < drafts[j].ID
	})
	return drafts, nil
}
