package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/sirupsen/logrus"
)

const idxCaseStudies = "casebook_case_studies"

// Meili indexes and searches case-study summaries in Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	log     logrus.FieldLogger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the index. An
// unreachable server is not an error; the health loop picks it up later.
func NewMeili(url, apiKey string, log logrus.FieldLogger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		log:    log.WithField("component", "search"),
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		m.log.WithError(err).WithField("url", url).Warn("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxCaseStudies,
		PrimaryKey: "folderName",
	}); err != nil {
		m.log.WithError(err).Debug("create index (may already exist)")
	}

	index := m.client.Index(idxCaseStudies)
	filterable := []interface{}{"status", "labels"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.WithError(err).Warn("update filterable attributes")
	}
	searchable := []string{"title", "labelText"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.WithError(err).Warn("update searchable attributes")
	}
	sortable := []string{"updatedAt"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		m.log.WithError(err).Warn("update sortable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}
	sr := &meili.SearchRequest{
		IndexUID:              idxCaseStudies,
		Query:                 q.Text,
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"title"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if filters := buildFilters(q); len(filters) > 0 {
		sr.Filter = filters
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var results []Result
	total := 0
	for _, res := range resp.Results {
		total += int(res.EstimatedTotalHits)
		for _, hit := range res.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func buildFilters(q Query) []string {
	var filters []string
	if q.Status != "" {
		filters = append(filters, fmt.Sprintf("status = %q", string(q.Status)))
	}
	if q.Label != "" {
		filters = append(filters, fmt.Sprintf("labels = %q", q.Label))
	}
	return filters
}

func hitToResult(hit meili.Hit) Result {
	title := decodeString(hit, "title")
	return Result{
		FolderName: decodeString(hit, "folderName"),
		ID:         decodeString(hit, "id"),
		Title:      title,
		Status:     statusOf(decodeString(hit, "status")),
		Snippet:    firstNonBlank(decodeFormattedString(hit, "title"), title),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexCaseStudies adds or replaces records.
func (m *Meili) IndexCaseStudies(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxCaseStudies).AddDocuments(records, nil)
	return err
}
