package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"casebook/internal/blob"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrCorrupt marks a stored record that cannot be decoded.
	ErrCorrupt = errors.New("corrupt record")
)

const (
	draftsPrefix = "drafts/"
	draftFile    = "draft.json"

	// loadConcurrency bounds parallel object reads during listings.
	loadConcurrency = 8
)

func DraftKey(id string) string {
	return draftsPrefix + id + "/" + draftFile
}

// DraftStore keeps drafts under drafts/{id}/draft.json.
type DraftStore struct {
	blobs blob.Store
	log   logrus.FieldLogger
}

func NewDraftStore(blobs blob.Store) *DraftStore {
	return &DraftStore{blobs: blobs, log: logrus.StandardLogger()}
}

// WithLogger sets where skipped records are reported.
func (s *DraftStore) WithLogger(log logrus.FieldLogger) *DraftStore {
	s.log = log
	return s
}

func (s *DraftStore) Get(ctx context.Context, id string) (Draft, error) {
	data, err := s.blobs.Get(ctx, DraftKey(id))
	if errors.Is(err, blob.ErrNotFound) {
		return Draft{}, ErrNotFound
	}
	if err != nil {
		return Draft{}, fmt.Errorf("get draft %s: %w", id, err)
	}
	var draft Draft
	if err := json.Unmarshal(data, &draft); err != nil {
		return Draft{}, fmt.Errorf("decode draft %s: %w: %w", id, ErrCorrupt, err)
	}
	return draft, nil
}

func (s *DraftStore) Put(ctx context.Context, draft Draft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode draft %s: %w", draft.ID, err)
	}
	if err := s.blobs.Put(ctx, DraftKey(draft.ID), data, blob.ContentTypeJSON); err != nil {
		return fmt.Errorf("put draft %s: %w", draft.ID, err)
	}
	return nil
}

func (s *DraftStore) Delete(ctx context.Context, id string) error {
	if err := s.blobs.Delete(ctx, DraftKey(id)); err != nil {
		return fmt.Errorf("delete draft %s: %w", id, err)
	}
	return nil
}

// List loads every stored draft. Drafts deleted between the listing and the
// load are skipped, and so are records that cannot be decoded.
func (s *DraftStore) List(ctx context.Context) ([]Draft, error) {
	keys, err := s.blobs.List(ctx, draftsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	ids := idsFromKeys(keys, draftsPrefix, draftFile)

	loaded := make([]*Draft, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			draft, err := s.Get(gctx, id)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if errors.Is(err, ErrCorrupt) {
				s.log.WithError(err).WithField("draft", id).Warn("skipping undecodable draft")
				return nil
			}
			if err != nil {
				return err
			}
			loaded[i] = &draft
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	drafts := make([]Draft, 0, len(loaded))
	for _, draft := range loaded {
		if draft != nil {
			drafts = append(drafts, *draft)
		}
	}
	return drafts, nil
}

// idsFromKeys extracts {id} from keys shaped prefix{id}/file, ignoring every
// other object stored under the prefix.
func idsFromKeys(keys []string, prefix, file string) []string {
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		id, ok := strings.CutSuffix(rest, "/"+file)
		if !ok || id == "" || strings.Contains(id, "/") {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
