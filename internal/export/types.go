// Package export renders case studies into DOCX documents.
package export

import (
	"context"
	"errors"

	"casebook/internal/labels"
	"casebook/internal/store"
)

// Generator produces the office documents stored next to a case study.
type Generator interface {
	GenerateCaseStudyDocx(ctx context.Context, q store.Questionnaire, l labels.Set, folderName string) ([]byte, error)
	GenerateOnePagerDocx(ctx context.Context, q store.Questionnaire, l labels.Set, folderName string) ([]byte, error)
}

const (
	CaseStudyFile = "case-study.docx"
	OnePagerFile  = "one-pager.docx"
)

var (
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)

// TemplateData holds data for document template rendering
type TemplateData struct {
	Title      string
	FolderName string
	Labels     []TemplateLabel
	Sections   []TemplateSection
}

type TemplateLabel struct {
	Category string
	Values   []string
}

type TemplateSection struct {
	Heading string
	Fields  []TemplateField
}

type TemplateField struct {
	Name  string
	Value string
}
