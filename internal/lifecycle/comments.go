package lifecycle

import (
	"context"
	"strings"

	"casebook/internal/reviews"
)

type CommentInput struct {
	Comment string `json:"comment" validate:"required,max=5000"`
	Author  string `json:"author" validate:"required,max=200"`
}

func (e *Engine) newComment(in CommentInput) (reviews.Comment, error) {
	in.Comment = strings.TrimSpace(in.Comment)
	in.Author = strings.TrimSpace(in.Author)
	if err := validateStruct(in); err != nil {
		return reviews.Comment{}, err
	}
	return reviews.Comment{Comment: in.Comment, Author: in.Author, Timestamp: e.timestamp()}, nil
}

// AddDraftComment appends to a draft's review thread. Decided drafts take no
// more comments.
func (e *Engine) AddDraftComment(ctx context.Context, draftID string, in CommentInput) ([]reviews.Comment, error) {
	c, err := e.newComment(in)
	if err != nil {
		return nil, err
	}

	unlock, err := e.lock(ctx, "draft:"+draftID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	draft, err := e.loadDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if draft.IsTombstone() {
		return nil, &InvalidTransitionError{Ref: draftID, From: draft.Status, To: draft.Status}
	}

	thread, err := e.reviews.AddToDraft(ctx, draftID, c)
	if err != nil {
		return nil, &BackingStoreError{Op: "save draft comments", Err: err}
	}
	return thread, nil
}

// AddCaseStudyComment appends to a case study's review thread.
func (e *Engine) AddCaseStudyComment(ctx context.Context, ref string, in CommentInput) ([]reviews.Comment, error) {
	c, err := e.newComment(in)
	if err != nil {
		return nil, err
	}
	item, err := e.resolveCaseStudy(ctx, ref)
	if err != nil {
		return nil, err
	}

	unlock, err := e.lock(ctx, "reviews:"+item.FolderName)
	if err != nil {
		return nil, err
	}
	defer unlock()

	thread, err := e.reviews.AddToCaseStudy(ctx, item.FolderName, c)
	if err != nil {
		return nil, &BackingStoreError{Op: "save case study comments", Err: err}
	}
	return thread, nil
}

func (e *Engine) DraftComments(ctx context.Context, draftID string) ([]reviews.Comment, error) {
	if _, err := e.loadDraft(ctx, draftID); err != nil {
		return nil, err
	}
	thread, err := e.reviews.ForDraft(ctx, draftID)
	if err != nil {
		return nil, &BackingStoreError{Op: "load draft comments", Err: err}
	}
	return thread, nil
}

func (e *Engine) CaseStudyComments(ctx context.Context, ref string) ([]reviews.Comment, error) {
	item, err := e.resolveCaseStudy(ctx, ref)
	if err != nil {
		return nil, err
	}
	thread, err := e.reviews.ForCaseStudy(ctx, item.FolderName)
	if err != nil {
		return nil, &BackingStoreError{Op: "load case study comments", Err: err}
	}
	return thread, nil
}
