// Package reviews stores review threads for drafts and case studies and copies
// a draft's thread onto the case study created from it.
package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"casebook/internal/blob"
)

type Comment struct {
	Comment   string    `json:"comment"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

func DraftKey(draftID string) string {
	return "draft-reviews/" + draftID + "/comments.json"
}

func CaseStudyKey(folderName string) string {
	return "reviews/" + folderName + "/comments.json"
}

// Store reads and writes whole comment threads. Callers serialize writes to
// the same thread.
type Store struct {
	blobs blob.Store
}

func NewStore(blobs blob.Store) *Store {
	return &Store{blobs: blobs}
}

func (s *Store) ForDraft(ctx context.Context, draftID string) ([]Comment, error) {
	return s.load(ctx, DraftKey(draftID))
}

func (s *Store) ForCaseStudy(ctx context.Context, folderName string) ([]Comment, error) {
	return s.load(ctx, CaseStudyKey(folderName))
}

func (s *Store) AddToDraft(ctx context.Context, draftID string, c Comment) ([]Comment, error) {
	return s.append(ctx, DraftKey(draftID), c)
}

func (s *Store) AddToCaseStudy(ctx context.Context, folderName string, c Comment) ([]Comment, error) {
	return s.append(ctx, CaseStudyKey(folderName), c)
}

// Transfer appends the draft's comments after any comments already on the case
// study and returns how many were copied. The draft thread is left in place.
func (s *Store) Transfer(ctx context.Context, draftID, folderName string) (int, error) {
	fromDraft, err := s.ForDraft(ctx, draftID)
	if err != nil {
		return 0, err
	}
	if len(fromDraft) == 0 {
		return 0, nil
	}
	existing, err := s.ForCaseStudy(ctx, folderName)
	if err != nil {
		return 0, err
	}
	merged := make([]Comment, 0, len(existing)+len(fromDraft))
	merged = append(merged, existing...)
	merged = append(merged, fromDraft...)
	if err := s.save(ctx, CaseStudyKey(folderName), merged); err != nil {
		return 0, err
	}
	return len(fromDraft), nil
}

func (s *Store) append(ctx context.Context, key string, c Comment) ([]Comment, error) {
	thread, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	thread = append(thread, c)
	if err := s.save(ctx, key, thread); err != nil {
		return nil, err
	}
	return thread, nil
}

func (s *Store) load(ctx context.Context, key string) ([]Comment, error) {
	data, err := s.blobs.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return []Comment{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load comments %s: %w", key, err)
	}
	var thread []Comment
	if err := json.Unmarshal(data, &thread); err != nil {
		return nil, fmt.Errorf("decode comments %s: %w", key, err)
	}
	if thread == nil {
		thread = []Comment{}
	}
	return thread, nil
}

func (s *Store) save(ctx context.Context, key string, thread []Comment) error {
	data, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("encode comments %s: %w", key, err)
	}
	if err := s.blobs.Put(ctx, key, data, blob.ContentTypeJSON); err != nil {
		return fmt.Errorf("save comments %s: %w", key, err)
	}
	return nil
}
