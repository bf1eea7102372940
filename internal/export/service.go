package export

import (
	"context"
	"fmt"
	"os/exec"

	"casebook/internal/labels"
	"casebook/internal/store"
)

// PandocGenerator renders HTML templates and converts them with pandoc.
type PandocGenerator struct {
	path    string
	convert func(ctx context.Context, pandoc, html string) ([]byte, error)
}

// NewPandocGenerator uses the pandoc binary at path, or "pandoc" from PATH.
func NewPandocGenerator(path string) *PandocGenerator {
	if path == "" {
		path = "pandoc"
	}
	return &PandocGenerator{path: path, convert: convertDOCX}
}

func (g *PandocGenerator) GenerateCaseStudyDocx(ctx context.Context, q store.Questionnaire, l labels.Set, folderName string) ([]byte, error) {
	html, err := RenderCaseStudyHTML(buildTemplateData(q, l, folderName, false))
	if err != nil {
		return nil, fmt.Errorf("render case study template: %w", err)
	}
	return g.convert(ctx, g.path, html)
}

func (g *PandocGenerator) GenerateOnePagerDocx(ctx context.Context, q store.Questionnaire, l labels.Set, folderName string) ([]byte, error) {
	html, err := RenderOnePagerHTML(buildTemplateData(q, l, folderName, true))
	if err != nil {
		return nil, fmt.Errorf("render one-pager template: %w", err)
	}
	return g.convert(ctx, g.path, html)
}

// Available reports whether the pandoc binary can be found.
func (g *PandocGenerator) Available() error {
	if _, err := exec.LookPath(g.path); err != nil {
		return fmt.Errorf("%w: %s not installed", ErrDOCXDependencyMissing, g.path)
	}
	return nil
}
