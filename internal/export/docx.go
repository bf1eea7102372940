package export

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// convertDOCX converts HTML to DOCX using pandoc
func convertDOCX(ctx context.Context, pandoc, html string) ([]byte, error) {
	if _, err := exec.LookPath(pandoc); err != nil {
		return nil, fmt.Errorf("%w: %s not installed", ErrDOCXDependencyMissing, pandoc)
	}

	cmd := exec.CommandContext(ctx, pandoc,
		"-f", "html",
		"-t", "docx",
		"--standalone",
		"-o", "-", // Output to stdout
	)
	cmd.Stdin = strings.NewReader(html)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("pandoc failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("pandoc execution failed: %w", err)
	}
	return output, nil
}

// FileName builds a download name such as "Retail-Analytics-one-pager.docx".
func FileName(title, document string) string {
	return sanitizeFilename(title) + "-" + document
}

func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		case r == '-', r == '_':
			b.WriteRune(r)
		}
	}

	result := b.String()
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "document"
	}
	return result
}
