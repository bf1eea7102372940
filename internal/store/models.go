package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"casebook/internal/labels"
)

// Status is the lifecycle state of a draft or case study.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusPublished   Status = "published"
)

// IsDraftState reports whether a draft may be in status s while still editable.
func (s Status) IsDraftState() bool {
	return s == StatusDraft || s == StatusUnderReview
}

// IsCaseStudyState reports whether a case study may be in status s.
func (s Status) IsCaseStudyState() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusPublished
}

// IsDecision reports whether s is the outcome of a review.
func (s Status) IsDecision() bool {
	return s == StatusApproved || s == StatusRejected
}

type Questionnaire struct {
	BasicInfo map[string]any `json:"basicInfo,omitempty"`
	Content   map[string]any `json:"content,omitempty"`
	Metrics   map[string]any `json:"metrics,omitempty"`
	Technical map[string]any `json:"technical,omitempty"`
}

type CustomMetric struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value"`
}

// FormPayload is the submitted case-study form. Labels stay raw until the
// lifecycle engine decodes them so a malformed value can be reported.
type FormPayload struct {
	Title         string          `json:"title" validate:"required,max=200"`
	Labels        json.RawMessage `json:"labels,omitempty"`
	CustomMetrics []CustomMetric  `json:"customMetrics,omitempty" validate:"dive"`
	Questionnaire Questionnaire   `json:"questionnaire"`
}

type Draft struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Data        FormPayload `json:"data"`
	Status      Status      `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	SubmittedAt *time.Time  `json:"submittedAt,omitempty"`
}

// IsTombstone reports whether the draft was already decided and only awaits
// deletion.
func (d Draft) IsTombstone() bool {
	return d.Status.IsDecision()
}

func (d *Draft) UnmarshalJSON(data []byte) error {
	type plain Draft
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	if decoded.Status == "" {
		decoded.Status = StatusDraft
	}
	if !decoded.Status.IsDraftState() && !decoded.Status.IsDecision() {
		return fmt.Errorf("draft %s: unexpected status %q", decoded.ID, decoded.Status)
	}
	*d = Draft(decoded)
	return nil
}

type CaseStudy struct {
	ID              string         `json:"id"`
	FolderName      string         `json:"folderName"`
	OriginalTitle   string         `json:"originalTitle"`
	Title           string         `json:"title"`
	Status          Status         `json:"status"`
	Labels          labels.Set     `json:"labels"`
	CustomMetrics   []CustomMetric `json:"customMetrics"`
	Questionnaire   Questionnaire  `json:"questionnaire"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	PublishedAt     *time.Time     `json:"publishedAt,omitempty"`
	OriginalDraftID string         `json:"originalDraftId,omitempty"`
}

// UnmarshalJSON normalizes records written by older releases: labels may hold
// {name, client} records, either title field may be missing and a missing
// status means approved.
func (c *CaseStudy) UnmarshalJSON(data []byte) error {
	type plain CaseStudy
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	if decoded.Status == "" {
		decoded.Status = StatusApproved
	}
	if !decoded.Status.IsCaseStudyState() {
		return fmt.Errorf("case study %s: unexpected status %q", decoded.FolderName, decoded.Status)
	}
	if strings.TrimSpace(decoded.Title) == "" {
		decoded.Title = decoded.OriginalTitle
	}
	if strings.TrimSpace(decoded.OriginalTitle) == "" {
		decoded.OriginalTitle = decoded.Title
	}
	if decoded.Labels == nil {
		decoded.Labels = labels.Set{}
	}
	*c = CaseStudy(decoded)
	return nil
}

// Summary is the listing projection of a case study.
type Summary struct {
	ID          string     `json:"id"`
	FolderName  string     `json:"folderName"`
	Title       string     `json:"title"`
	Status      Status     `json:"status"`
	Labels      labels.Set `json:"labels"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

func (c CaseStudy) Summary() Summary {
	return Summary{
		ID:          c.ID,
		FolderName:  c.FolderName,
		Title:       c.Title,
		Status:      c.Status,
		Labels:      c.Labels.Clone(),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		PublishedAt: c.PublishedAt,
	}
}
