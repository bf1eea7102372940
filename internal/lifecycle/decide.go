package lifecycle

import (
	"context"

	"github.com/sirupsen/logrus"

	"casebook/internal/blob"
	"casebook/internal/export"
	"casebook/internal/labels"
	"casebook/internal/store"
)

// Outcome is the committed case study plus any best-effort step that failed.
type Outcome struct {
	CaseStudy          store.CaseStudy
	SideEffectFailures []*NonFatalSideEffectError
}

// Approve turns a draft into an approved case study.
func (e *Engine) Approve(ctx context.Context, draftID string) (Outcome, error) {
	return e.decide(ctx, draftID, store.StatusApproved)
}

// Reject turns a draft into a rejected case study.
func (e *Engine) Reject(ctx context.Context, draftID string) (Outcome, error) {
	return e.decide(ctx, draftID, store.StatusRejected)
}

func (e *Engine) decide(ctx context.Context, draftID string, status store.Status) (Outcome, error) {
	unlock, err := e.lock(ctx, "draft:"+draftID)
	if err != nil {
		return Outcome{}, err
	}
	defer unlock()

	draft, err := e.loadDraft(ctx, draftID)
	if err != nil {
		return Outcome{}, err
	}
	if draft.Status != store.StatusUnderReview {
		return Outcome{}, &InvalidTransitionError{Ref: draftID, From: draft.Status, To: status}
	}

	submitted, err := labels.Decode(draft.Data.Labels)
	if err != nil {
		return Outcome{}, &ValidationError{Field: "labels", Message: err.Error()}
	}
	validated := labels.Validate(submitted, e.currentCatalog(ctx))

	now := e.timestamp()
	item := store.CaseStudy{
		ID:              e.newCaseStudyID(),
		FolderName:      e.newFolderName(draft.Title),
		OriginalTitle:   draft.Title,
		Title:           draft.Title,
		Status:          status,
		Labels:          validated,
		CustomMetrics:   draft.Data.CustomMetrics,
		Questionnaire:   draft.Data.Questionnaire,
		CreatedAt:       now,
		UpdatedAt:       now,
		OriginalDraftID: draftID,
	}
	if item.CustomMetrics == nil {
		item.CustomMetrics = []store.CustomMetric{}
	}
	log := e.log.WithFields(logrus.Fields{"draft": draftID, "folder": item.FolderName, "status": status})

	if err := e.caseStudies.Put(ctx, item); err != nil {
		return Outcome{}, &BackingStoreError{Op: "write case study metadata", Err: err}
	}

	// Metadata exists from here on, so every return invalidates the listing.
	if err := e.writeDocuments(ctx, item); err != nil {
		e.cache.Invalidate(ctx)
		log.WithError(err).Error("document generation failed after metadata write")
		return Outcome{}, err
	}

	var failures []*NonFatalSideEffectError

	draft.Status = status
	draft.UpdatedAt = now
	failures = e.sideEffect(failures, StepDraftStatus, draftID, e.drafts.Put(ctx, draft))

	failures = e.sideEffect(failures, StepCommentTransfer, draftID, e.transferComments(ctx, draftID, item.FolderName))

	e.cache.Invalidate(ctx)

	failures = e.sideEffect(failures, StepDraftDelete, draftID, e.drafts.Delete(ctx, draftID))

	e.search.Index(item.Summary())

	e.metrics.transitions.WithLabelValues(string(status)).Inc()
	log.WithField("side_effect_failures", len(failures)).Info("draft decided")
	return Outcome{CaseStudy: item, SideEffectFailures: failures}, nil
}

// writeDocuments generates and uploads both office documents. A nil
// generator disables the step.
func (e *Engine) writeDocuments(ctx context.Context, item store.CaseStudy) error {
	if e.docs == nil {
		return nil
	}
	full, err := e.docs.GenerateCaseStudyDocx(ctx, item.Questionnaire, item.Labels, item.FolderName)
	if err != nil {
		return &BackingStoreError{Op: "generate case study document", Err: err}
	}
	onePager, err := e.docs.GenerateOnePagerDocx(ctx, item.Questionnaire, item.Labels, item.FolderName)
	if err != nil {
		return &BackingStoreError{Op: "generate one-pager document", Err: err}
	}
	if err := e.caseStudies.PutDocument(ctx, item.FolderName, export.CaseStudyFile, full, blob.ContentTypeDOCX); err != nil {
		return &BackingStoreError{Op: "upload case study document", Err: err}
	}
	if err := e.caseStudies.PutDocument(ctx, item.FolderName, export.OnePagerFile, onePager, blob.ContentTypeDOCX); err != nil {
		return &BackingStoreError{Op: "upload one-pager document", Err: err}
	}
	return nil
}

func (e *Engine) transferComments(ctx context.Context, draftID, folderName string) error {
	unlock, err := e.locker.Lock(ctx, "reviews:"+folderName)
	if err != nil {
		return err
	}
	defer unlock()

	n, err := e.reviews.Transfer(ctx, draftID, folderName)
	if err != nil {
		return err
	}
	if n > 0 {
		e.log.WithFields(logrus.Fields{"draft": draftID, "folder": folderName, "comments": n}).Debug("review comments copied")
	}
	return nil
}
