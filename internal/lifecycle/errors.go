package lifecycle

import (
	"fmt"

	"casebook/internal/store"
)

// NotFoundError reports a draft or case study that does not exist.
type NotFoundError struct {
	Kind string
	Ref  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Ref)
}

// ValidationError reports a malformed submission.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

// BackingStoreError reports a failed critical-path step. The transition must
// be treated as not having happened.
type BackingStoreError struct {
	Op  string
	Err error
}

func (e *BackingStoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackingStoreError) Unwrap() error { return e.Err }

// NonFatalSideEffectError records a best-effort step that failed after the
// case study was committed.
type NonFatalSideEffectError struct {
	Step string
	Ref  string
	Err  error
}

func (e *NonFatalSideEffectError) Error() string {
	return fmt.Sprintf("%s for %s: %v", e.Step, e.Ref, e.Err)
}

func (e *NonFatalSideEffectError) Unwrap() error { return e.Err }

// InvalidTransitionError reports a transition not allowed from the record's
// current status.
type InvalidTransitionError struct {
	Ref  string
	From store.Status
	To   store.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Ref, e.From, e.To)
}

const (
	StepDraftStatus     = "draft_status"
	StepCommentTransfer = "comment_transfer"
	StepDraftDelete     = "draft_delete"
)
