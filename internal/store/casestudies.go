package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"casebook/internal/blob"
)

const (
	caseStudiesPrefix = "case-studies/"
	metadataFile      = "metadata.json"
)

func MetadataKey(folderName string) string {
	return caseStudiesPrefix + folderName + "/" + metadataFile
}

func DocumentKey(folderName, fileName string) string {
	return caseStudiesPrefix + folderName + "/" + fileName
}

// CaseStudyStore keeps case-study metadata under
// case-studies/{folderName}/metadata.json, next to its generated documents.
type CaseStudyStore struct {
	blobs blob.Store
	log   logrus.FieldLogger
}

func NewCaseStudyStore(blobs blob.Store) *CaseStudyStore {
	return &CaseStudyStore{blobs: blobs, log: logrus.StandardLogger()}
}

func (s *CaseStudyStore) WithLogger(log logrus.FieldLogger) *CaseStudyStore {
	s.log = log
	return s
}

func (s *CaseStudyStore) Get(ctx context.Context, folderName string) (CaseStudy, error) {
	data, err := s.blobs.Get(ctx, MetadataKey(folderName))
	if errors.Is(err, blob.ErrNotFound) {
		return CaseStudy{}, ErrNotFound
	}
	if err != nil {
		return CaseStudy{}, fmt.Errorf("get case study %s: %w", folderName, err)
	}
	var item CaseStudy
	if err := json.Unmarshal(data, &item); err != nil {
		return CaseStudy{}, fmt.Errorf("decode case study %s: %w: %w", folderName, ErrCorrupt, err)
	}
	if item.FolderName == "" {
		item.FolderName = folderName
	}
	return item, nil
}

func (s *CaseStudyStore) Put(ctx context.Context, item CaseStudy) error {
	if item.FolderName == "" {
		return fmt.Errorf("put case study %s: missing folder name", item.ID)
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode case study %s: %w", item.FolderName, err)
	}
	if err := s.blobs.Put(ctx, MetadataKey(item.FolderName), data, blob.ContentTypeJSON); err != nil {
		return fmt.Errorf("put case study %s: %w", item.FolderName, err)
	}
	return nil
}

// PutDocument uploads a generated file into the case study's folder.
func (s *CaseStudyStore) PutDocument(ctx context.Context, folderName, fileName string, data []byte, contentType string) error {
	if err := s.blobs.Put(ctx, DocumentKey(folderName, fileName), data, contentType); err != nil {
		return fmt.Errorf("upload %s for %s: %w", fileName, folderName, err)
	}
	return nil
}

// List loads every case study, most recently updated first. Undecodable
// records are logged and left out so one bad folder cannot hide the rest.
func (s *CaseStudyStore) List(ctx context.Context) ([]CaseStudy, error) {
	keys, err := s.blobs.List(ctx, caseStudiesPrefix)
	if err != nil {
		return nil, fmt.Errorf("list case studies: %w", err)
	}
	folders := idsFromKeys(keys, caseStudiesPrefix, metadataFile)

	loaded := make([]*CaseStudy, len(folders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, folder := range folders {
		g.Go(func() error {
			item, err := s.Get(gctx, folder)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if errors.Is(err, ErrCorrupt) {
				s.log.WithError(err).WithField("folder", folder).Warn("skipping undecodable case study")
				return nil
			}
			if err != nil {
				return err
			}
			loaded[i] = &item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]CaseStudy, 0, len(loaded))
	for _, item := range loaded {
		if item != nil {
			items = append(items, *item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].FolderName < items[j].FolderName
	})
	return items, nil
}

// ListSummaries is the resync source of the listing cache.
func (s *CaseStudyStore) ListSummaries(ctx context.Context) ([]Summary, error) {
	items, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]Summary, 0, len(items))
	for _, item := range items {
		summaries = append(summaries, item.Summary())
	}
	return summaries, nil
}
