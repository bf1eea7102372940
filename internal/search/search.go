package search

import (
	"sort"

	"casebook/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	FolderName string       `json:"folderName"`
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Status     store.Status `json:"status"`
	Snippet    string       `json:"snippet,omitempty"`
}

// Query describes a search request. Label filters take the form
// "category:value".
type Query struct {
	Text   string
	Status store.Status
	Label  string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Source  string   `json:"source"`
}

// Record is the data we index for a case study. The folder name is the
// primary key since it never changes.
type Record struct {
	FolderName string   `json:"folderName"`
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Status     string   `json:"status"`
	Labels     []string `json:"labels"`
	LabelText  string   `json:"labelText"`
	UpdatedAt  int64    `json:"updatedAt"`
}

func RecordFromSummary(s store.Summary) Record {
	r := Record{
		FolderName: s.FolderName,
		ID:         s.ID,
		Title:      s.Title,
		Status:     string(s.Status),
		Labels:     []string{},
		UpdatedAt:  s.UpdatedAt.Unix(),
	}
	var values []string
	for _, category := range s.Labels.Categories() {
		for _, value := range s.Labels[category] {
			r.Labels = append(r.Labels, category+":"+value)
			values = append(values, value)
		}
	}
	sort.Strings(values)
	for i, v := range values {
		if i > 0 {
			r.LabelText += " "
		}
		r.LabelText += v
	}
	return r
}
