package search

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"casebook/internal/store"
)

// Lister supplies the case-study listing used when Meilisearch is absent.
// cache.Cache.Read satisfies it.
type Lister func(ctx context.Context) ([]store.Summary, error)

type backend interface {
	Healthy() bool
	Search(q Query) ([]Result, int, error)
	IndexCaseStudies(records []Record) error
}

// Service is the facade that tries Meilisearch first and falls back to
// filtering the cached listing.
type Service struct {
	meili backend
	list  Lister
	log   logrus.FieldLogger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, list Lister, log logrus.FieldLogger) *Service {
	s := &Service{list: list, log: log.WithField("component", "search")}
	if meili != nil {
		s.meili = meili
	}
	return s
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: "meilisearch"}
		}
		s.log.WithError(err).Warn("meilisearch error, falling back to listing")
	}

	summaries, err := s.list(ctx)
	if err != nil {
		s.log.WithError(err).Error("search fallback listing failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Source: "listing"}
	}
	results, total := filterSummaries(summaries, q)
	return Response{Results: results, Total: total, Query: q.Text, Source: "listing"}
}

// Index pushes a case study to Meilisearch (fire-and-forget).
func (s *Service) Index(summary store.Summary) {
	if s == nil || s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := RecordFromSummary(summary)
	go func() {
		if err := s.meili.IndexCaseStudies([]Record{record}); err != nil {
			s.log.WithError(err).WithField("folder", record.FolderName).Warn("index case study")
		}
	}()
}

// ReindexAll pushes the full listing to Meilisearch and returns how many
// records were sent.
func (s *Service) ReindexAll(ctx context.Context) (int, error) {
	if s.meili == nil || !s.meili.Healthy() {
		return 0, nil
	}
	summaries, err := s.list(ctx)
	if err != nil {
		return 0, err
	}
	records := make([]Record, 0, len(summaries))
	for _, summary := range summaries {
		records = append(records, RecordFromSummary(summary))
	}
	if err := s.meili.IndexCaseStudies(records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Healthy reports whether the Meilisearch backend is in use.
func (s *Service) Healthy() bool {
	return s.meili != nil && s.meili.Healthy()
}

func filterSummaries(summaries []store.Summary, q Query) ([]Result, int) {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	matched := make([]Result, 0)
	for _, summary := range summaries {
		if q.Status != "" && summary.Status != q.Status {
			continue
		}
		if q.Label != "" && !hasLabel(summary, q.Label) {
			continue
		}
		if text != "" && !matchesText(summary, text) {
			continue
		}
		matched = append(matched, Result{
			FolderName: summary.FolderName,
			ID:         summary.ID,
			Title:      summary.Title,
			Status:     summary.Status,
			Snippet:    summary.Title,
		})
	}

	total := len(matched)
	limit := q.Limit
	if limit == 0 {
		limit = 20
	}
	start := min(max(q.Offset, 0), total)
	end := min(start+limit, total)
	return matched[start:end], total
}

func hasLabel(summary store.Summary, label string) bool {
	category, value, ok := strings.Cut(label, ":")
	if !ok {
		return false
	}
	for _, v := range summary.Labels[category] {
		if v == value {
			return true
		}
	}
	return false
}

func matchesText(summary store.Summary, text string) bool {
	if strings.Contains(strings.ToLower(summary.Title), text) {
		return true
	}
	for _, values := range summary.Labels {
		for _, v := range values {
			if strings.Contains(strings.ToLower(v), text) {
				return true
			}
		}
	}
	return false
}

func statusOf(s string) store.Status {
	return store.Status(s)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
