package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casebook/internal/blob"
	"casebook/internal/export"
	"casebook/internal/labels"
	"casebook/internal/reviews"
	"casebook/internal/store"
)

func TestSaveSubmitApproveEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	d := h.submittedDraft(t, "X", "")
	assert.Equal(t, store.StatusUnderReview, d.Status)
	require.NotNil(t, d.SubmittedAt)

	out, err := h.engine.Approve(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, out.SideEffectFailures)

	items, err := h.engine.ListCaseStudies(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	cs, err := h.engine.GetCaseStudy(ctx, items[0].FolderName)
	require.NoError(t, err)
	assert.Equal(t, "X", cs.Title)
	assert.Equal(t, "X", cs.OriginalTitle)
	assert.Equal(t, store.StatusApproved, cs.Status)
	assert.Equal(t, d.ID, cs.OriginalDraftID)
	assert.True(t, strings.HasPrefix(cs.FolderName, "x-"), cs.FolderName)

	_, err = h.engine.GetDraft(ctx, d.ID)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	drafts, err := h.engine.ListDrafts(ctx)
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestRejectCreatesRejectedCaseStudy(t *testing.T) {
	h := newHarness(t)
	d := h.submittedDraft(t, "Failed Pilot", "")

	out, err := h.engine.Reject(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRejected, out.CaseStudy.Status)
	assert.Equal(t, "Failed Pilot", out.CaseStudy.OriginalTitle)

	_, err = h.engine.GetDraft(context.Background(), d.ID)
	assert.Error(t, err)
}

func TestApproveKeepsUnknownCategoriesAndFiltersKnownOnes(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Catalog = labels.StaticCatalog{"client": {"A", "C"}, "Circles": {"Inner"}}
	})
	d := h.submittedDraft(t, "Labels", `{"client":["A"],"Extra":["B"]}`)

	out, err := h.engine.Approve(context.Background(), d.ID)
	require.NoError(t, err)
	want := labels.Set{"client": {"A"}, "Extra": {"B"}}
	if diff := cmp.Diff(want, out.CaseStudy.Labels); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}

	stored, err := h.engine.GetCaseStudy(context.Background(), out.CaseStudy.FolderName)
	require.NoError(t, err)
	assert.Equal(t, want, stored.Labels)
}

func TestFilteredToEmptyCategoryIsKept(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Catalog = labels.StaticCatalog{"client": {"A"}}
	})
	d := h.submittedDraft(t, "Empty", `{"client":["Z"]}`)

	out, err := h.engine.Approve(context.Background(), d.ID)
	require.NoError(t, err)
	values, ok := out.CaseStudy.Labels["client"]
	assert.True(t, ok)
	assert.Empty(t, values)
}

func TestUnavailableCatalogPreservesLabels(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Catalog = failingCatalog{} })
	d := h.submittedDraft(t, "Offline", `{"client":["Acme"]}`)

	out, err := h.engine.Approve(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, labels.Set{"client": {"Acme"}}, out.CaseStudy.Labels)
}

func TestLegacyLabelShapesNormalizeOnApprove(t *testing.T) {
	h := newHarness(t)
	d := h.submittedDraft(t, "Legacy", `{"client":[{"name":"Acme"},{"client":"Globex"}],"sector":"Retail"}`)

	out, err := h.engine.Approve(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, labels.Set{"client": {"Acme", "Globex"}, "sector": {"Retail"}}, out.CaseStudy.Labels)
}

func TestListingIsFreshAfterEveryMutation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	approved := h.submittedDraft(t, "Approved One", "")
	rejected := h.submittedDraft(t, "Rejected One", "")
	assert.Empty(t, h.primeCache(t))

	out, err := h.engine.Approve(ctx, approved.ID)
	require.NoError(t, err)
	summary, ok := findSummary(h.primeCache(t), out.CaseStudy.FolderName)
	require.True(t, ok, "approved case study missing from listing")
	assert.Equal(t, store.StatusApproved, summary.Status)

	outR, err := h.engine.Reject(ctx, rejected.ID)
	require.NoError(t, err)
	summary, ok = findSummary(h.primeCache(t), outR.CaseStudy.FolderName)
	require.True(t, ok, "rejected case study missing from listing")
	assert.Equal(t, store.StatusRejected, summary.Status)

	_, err = h.engine.Publish(ctx, out.CaseStudy.FolderName)
	require.NoError(t, err)
	summary, _ = findSummary(h.primeCache(t), out.CaseStudy.FolderName)
	assert.Equal(t, store.StatusPublished, summary.Status)

	_, err = h.engine.UpdateCaseStudy(ctx, outR.CaseStudy.FolderName, payload("Renamed", ""))
	require.NoError(t, err)
	summary, _ = findSummary(h.primeCache(t), outR.CaseStudy.FolderName)
	assert.Equal(t, "Renamed", summary.Title)
}

func TestDraftDeleteFailureIsNonFatal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.submittedDraft(t, "Sticky", "")
	h.blobs.FailDelete("drafts/")

	out, err := h.engine.Approve(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, out.SideEffectFailures, 1)
	failure := out.SideEffectFailures[0]
	assert.Equal(t, StepDraftDelete, failure.Step)
	assert.ErrorIs(t, failure, errInjected)

	cs, err := h.engine.GetCaseStudy(ctx, out.CaseStudy.FolderName)
	require.NoError(t, err)
	assert.Equal(t, store.StatusApproved, cs.Status)

	// The draft lingers as a tombstone that accepts no further transitions.
	leftover, err := h.engine.GetDraft(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, leftover.IsTombstone())

	_, err = h.engine.Approve(ctx, d.ID)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	_, err = h.engine.SubmitForReview(ctx, d.ID, payload("Sticky", ""))
	require.ErrorAs(t, err, &invalid)

	orphans, err := h.engine.Orphans(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, d.ID, orphans[0].ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.engine.metrics.sideEffectFailures.WithLabelValues(StepDraftDelete)))
	entry := h.hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	var warned bool
	for _, e := range h.hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["step"] == StepDraftDelete {
			warned = true
		}
	}
	assert.True(t, warned, "expected a warning for the failed delete")
}

func TestDraftStatusAndCommentFailuresAreNonFatal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.submittedDraft(t, "Flaky", "")
	_, err := h.engine.AddDraftComment(ctx, d.ID, CommentInput{Comment: "looks good", Author: "ana"})
	require.NoError(t, err)

	h.blobs.FailPut("drafts/")
	h.blobs.FailPut("reviews/")

	out, err := h.engine.Approve(ctx, d.ID)
	require.NoError(t, err)
	steps := []string{}
	for _, f := range out.SideEffectFailures {
		steps = append(steps, f.Step)
	}
	assert.Equal(t, []string{StepDraftStatus, StepCommentTransfer}, steps)

	h.blobs.Reset()
	_, err = h.engine.GetCaseStudy(ctx, out.CaseStudy.FolderName)
	require.NoError(t, err)
	_, err = h.engine.GetDraft(ctx, d.ID)
	assert.Error(t, err, "draft should still be deleted")
}

func TestMetadataWriteFailureAbortsApprove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.submittedDraft(t, "Doomed", "")
	h.blobs.FailPut("case-studies/")

	_, err := h.engine.Approve(ctx, d.ID)
	var bse *BackingStoreError
	require.ErrorAs(t, err, &bse)
	assert.ErrorIs(t, err, errInjected)

	h.blobs.Reset()
	assert.Empty(t, h.primeCache(t))
	still, err := h.engine.GetDraft(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusUnderReview, still.Status)
	assert.Zero(t, h.docs.calls.Load())
}

func TestDocumentFailureAfterMetadataStillInvalidates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.submittedDraft(t, "No Docs", "")
	h.primeCache(t)
	h.docs.err = export.ErrDOCXDependencyMissing

	_, err := h.engine.Approve(ctx, d.ID)
	var bse *BackingStoreError
	require.ErrorAs(t, err, &bse)
	assert.ErrorIs(t, err, export.ErrDOCXDependencyMissing)

	// The metadata write is committed, so the listing must show it.
	items := h.primeCache(t)
	assert.Len(t, items, 1)

	still, err := h.engine.GetDraft(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusUnderReview, still.Status)
}

func TestApproveUploadsDocuments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.submittedDraft(t, "With Docs", "")

	out, err := h.engine.Approve(ctx, d.ID)
	require.NoError(t, err)
	folder := out.CaseStudy.FolderName

	full, err := h.blobs.Get(ctx, store.DocumentKey(folder, export.CaseStudyFile))
	require.NoError(t, err)
	assert.Equal(t, "full:"+folder, string(full))
	one, err := h.blobs.Get(ctx, store.DocumentKey(folder, export.OnePagerFile))
	require.NoError(t, err)
	assert.Equal(t, "one:"+folder, string(one))
}

func TestApproveWithoutDocumentGenerator(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Documents = nil })
	d := h.submittedDraft(t, "Plain", "")

	out, err := h.engine.Approve(context.Background(), d.ID)
	require.NoError(t, err)
	_, err = h.blobs.Get(context.Background(), store.DocumentKey(out.CaseStudy.FolderName, export.CaseStudyFile))
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestMissingDraftIsNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := map[string]func() error{
		"approve": func() error { _, err := h.engine.Approve(ctx, "draft_missing"); return err },
		"reject":  func() error { _, err := h.engine.Reject(ctx, "draft_missing"); return err },
		"submit": func() error {
			_, err := h.engine.SubmitForReview(ctx, "draft_missing", payload("X", ""))
			return err
		},
		"resubmit": func() error {
			_, err := h.engine.Resubmit(ctx, "draft_missing", payload("X", ""))
			return err
		},
		"feedback": func() error { _, err := h.engine.IncorporateFeedback(ctx, "draft_missing"); return err },
		"comment": func() error {
			_, err := h.engine.AddDraftComment(ctx, "draft_missing", CommentInput{Comment: "c", Author: "a"})
			return err
		},
	}
	for name, call := range tests {
		t.Run(name, func(t *testing.T) {
			var nf *NotFoundError
			require.ErrorAs(t, call(), &nf)
			assert.Equal(t, "draft", nf.Kind)
		})
	}
	assert.Empty(t, h.primeCache(t))
}

func TestFeedbackRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.submittedDraft(t, "Iterate", `{"client":["Acme"]}`)

	back, err := h.engine.IncorporateFeedback(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDraft, back.Status)
	assert.Equal(t, d.Data, back.Data, "feedback must not alter the payload")

	_, err = h.engine.IncorporateFeedback(ctx, d.ID)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, store.StatusDraft, invalid.From)

	again, err := h.engine.Resubmit(ctx, d.ID, payload("Iterate v2", ""))
	require.NoError(t, err)
	assert.Equal(t, store.StatusUnderReview, again.Status)
	assert.Equal(t, "Iterate v2", again.Title)
	assert.Equal(t, d.ID, again.ID)
	assert.True(t, again.SubmittedAt.After(*d.SubmittedAt))
}

func TestCreateReusesDraftWithSameTitle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.engine.Create(ctx, SaveDraftInput{Payload: payload("Retail", "")})
	require.NoError(t, err)
	h.tick()
	second, err := h.engine.Create(ctx, SaveDraftInput{Payload: payload("  Retail  ", `{"client":["Acme"]}`)})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.CreatedAt.Equal(first.CreatedAt))
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
	assert.Equal(t, "Retail", second.Title)

	drafts, err := h.engine.ListDrafts(ctx)
	require.NoError(t, err)
	assert.Len(t, drafts, 1)
}

func TestCreateDoesNotReuseDraftUnderReview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reviewing := h.submittedDraft(t, "Retail", "")

	fresh, err := h.engine.Create(ctx, SaveDraftInput{Payload: payload("Retail", "")})
	require.NoError(t, err)
	assert.NotEqual(t, reviewing.ID, fresh.ID)
}

func TestCreateWithExplicitID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.engine.Create(ctx, SaveDraftInput{ID: "draft_fixed", Payload: payload("One", "")})
	require.NoError(t, err)
	assert.Equal(t, "draft_fixed", created.ID)

	reviewing, err := h.engine.SubmitForReview(ctx, "draft_fixed", payload("One", ""))
	require.NoError(t, err)
	assert.Equal(t, store.StatusUnderReview, reviewing.Status)

	edited, err := h.engine.Create(ctx, SaveDraftInput{ID: "draft_fixed", Payload: payload("One edited", "")})
	require.NoError(t, err)
	assert.Equal(t, store.StatusDraft, edited.Status)
	assert.True(t, edited.CreatedAt.Equal(created.CreatedAt))
}

func TestPayloadValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		payload store.FormPayload
		field   string
	}{
		{"blank title", payload("   ", ""), "title"},
		{"too long title", payload(strings.Repeat("x", 201), ""), "title"},
		{"labels not a mapping", payload("T", `["a","b"]`), "labels"},
		{"label value not a string", payload("T", `{"client":[1]}`), "labels"},
		{"unnamed metric", store.FormPayload{Title: "T", CustomMetrics: []store.CustomMetric{{Value: "3"}}}, "customMetrics[0].name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.Create(ctx, SaveDraftInput{Payload: tt.payload})
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	drafts, err := h.engine.ListDrafts(ctx)
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestPublishRequiresApproved(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	approved, err := h.engine.Approve(ctx, h.submittedDraft(t, "Good", "").ID)
	require.NoError(t, err)
	rejected, err := h.engine.Reject(ctx, h.submittedDraft(t, "Bad", "").ID)
	require.NoError(t, err)

	_, err = h.engine.Publish(ctx, rejected.CaseStudy.FolderName)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, store.StatusRejected, invalid.From)

	// Publishing by case-study id resolves the folder.
	published, err := h.engine.Publish(ctx, approved.CaseStudy.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)
	assert.Equal(t, approved.CaseStudy.FolderName, published.FolderName)

	_, err = h.engine.Publish(ctx, approved.CaseStudy.FolderName)
	require.ErrorAs(t, err, &invalid)

	_, err = h.engine.Publish(ctx, "nope")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "case study", nf.Kind)
}

func TestUpdateCaseStudyKeepsIdentity(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Catalog = labels.StaticCatalog{"client": {"Acme"}}
	})
	ctx := context.Background()
	out, err := h.engine.Approve(ctx, h.submittedDraft(t, "Original", "").ID)
	require.NoError(t, err)
	h.tick()

	updated, err := h.engine.UpdateCaseStudy(ctx, out.CaseStudy.FolderName, payload("Edited", `{"client":["Acme","Nope"],"region":["EU"]}`))
	require.NoError(t, err)
	assert.Equal(t, "Edited", updated.Title)
	assert.Equal(t, "Original", updated.OriginalTitle)
	assert.Equal(t, out.CaseStudy.FolderName, updated.FolderName)
	assert.Equal(t, out.CaseStudy.ID, updated.ID)
	assert.Equal(t, store.StatusApproved, updated.Status)
	assert.Equal(t, labels.Set{"client": {"Acme"}, "region": {"EU"}}, updated.Labels)
	assert.True(t, updated.UpdatedAt.After(out.CaseStudy.UpdatedAt))

	_, err = h.engine.UpdateCaseStudy(ctx, out.CaseStudy.FolderName, payload("", ""))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestCommentsTransferOnApprove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.submittedDraft(t, "Discussed", "")

	_, err := h.engine.AddDraftComment(ctx, d.ID, CommentInput{Comment: "tighten the intro", Author: "ana"})
	require.NoError(t, err)
	h.tick()
	thread, err := h.engine.AddDraftComment(ctx, d.ID, CommentInput{Comment: "numbers?", Author: "ben"})
	require.NoError(t, err)
	require.Len(t, thread, 2)

	_, err = h.engine.AddDraftComment(ctx, d.ID, CommentInput{Comment: "  ", Author: "ben"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "comment", ve.Field)

	out, err := h.engine.Approve(ctx, d.ID)
	require.NoError(t, err)

	copied, err := h.engine.CaseStudyComments(ctx, out.CaseStudy.ID)
	require.NoError(t, err)
	want := []reviews.Comment{thread[0], thread[1]}
	if diff := cmp.Diff(want, copied); diff != "" {
		t.Fatalf("comments mismatch (-want +got):\n%s", diff)
	}

	more, err := h.engine.AddCaseStudyComment(ctx, out.CaseStudy.FolderName, CommentInput{Comment: "ship it", Author: "cy"})
	require.NoError(t, err)
	assert.Len(t, more, 3)

	_, err = h.engine.DraftComments(ctx, d.ID)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestConcurrentApproveCommitsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.submittedDraft(t, "Race", "")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = h.engine.Approve(ctx, d.ID)
			} else {
				_, errs[i] = h.engine.Reject(ctx, d.ID)
			}
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var nf *NotFoundError
		assert.True(t, errors.As(err, &nf), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	items, err := h.engine.ListCaseStudies(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestTransitionMetrics(t *testing.T) {
	h := newHarness(t)
	d := h.submittedDraft(t, "Counted", "")
	_, err := h.engine.Approve(context.Background(), d.ID)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.engine.metrics.transitions.WithLabelValues(string(store.StatusUnderReview))))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.engine.metrics.transitions.WithLabelValues(string(store.StatusApproved))))
}

func TestApproveRequiresUnderReview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d, err := h.engine.Create(ctx, SaveDraftInput{Payload: payload("Unsubmitted", "")})
	require.NoError(t, err)

	var invalid *InvalidTransitionError
	_, err = h.engine.Approve(ctx, d.ID)
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, store.StatusDraft, invalid.From)
	assert.Equal(t, store.StatusApproved, invalid.To)

	_, err = h.engine.Reject(ctx, d.ID)
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, store.StatusRejected, invalid.To)

	assert.Empty(t, h.primeCache(t))
	still, err := h.engine.GetDraft(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDraft, still.Status)
}

func TestCreateRejectsUnsafeDraftID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, id := range []string{"a/b", "../escape", "-leading", "has space", "draft.json", strings.Repeat("x", 129)} {
		t.Run(id, func(t *testing.T) {
			_, err := h.engine.Create(ctx, SaveDraftInput{ID: id, Payload: payload("Unsafe", "")})
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "id", ve.Field)
		})
	}

	keys, err := h.blobs.List(ctx, "drafts/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
