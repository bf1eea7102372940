package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"casebook/internal/labels"
	"casebook/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	caseStudyTemplate *template.Template
	onePagerTemplate  *template.Template
)

func init() {
	funcMap := template.FuncMap{
		"join": strings.Join,
	}
	caseStudyTemplate = template.Must(template.New("casestudy.html").Funcs(funcMap).ParseFS(templateFS, "templates/casestudy.html"))
	onePagerTemplate = template.Must(template.New("onepager.html").Funcs(funcMap).ParseFS(templateFS, "templates/onepager.html"))
}

// RenderCaseStudyHTML renders every questionnaire section in full.
func RenderCaseStudyHTML(data TemplateData) (string, error) {
	return render(caseStudyTemplate, data)
}

// RenderOnePagerHTML renders the condensed single-page variant.
func RenderOnePagerHTML(data TemplateData) (string, error) {
	return render(onePagerTemplate, data)
}

func render(tmpl *template.Template, data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const onePagerValueLimit = 280

// buildTemplateData flattens the questionnaire into ordered sections. The
// one-pager keeps basic info and metrics whole and shortens everything else.
func buildTemplateData(q store.Questionnaire, l labels.Set, folderName string, onePager bool) TemplateData {
	data := TemplateData{
		Title:      documentTitle(q, folderName),
		FolderName: folderName,
	}
	for _, category := range l.Categories() {
		if len(l[category]) == 0 {
			continue
		}
		data.Labels = append(data.Labels, TemplateLabel{Category: humanize(category), Values: l[category]})
	}

	sections := []struct {
		heading  string
		fields   map[string]any
		truncate bool
	}{
		{"Basic Information", q.BasicInfo, false},
		{"Content", q.Content, onePager},
		{"Metrics", q.Metrics, false},
		{"Technical Details", q.Technical, onePager},
	}
	for _, s := range sections {
		if onePager && s.heading == "Technical Details" {
			continue
		}
		section := TemplateSection{Heading: s.heading}
		keys := make([]string, 0, len(s.fields))
		for k := range s.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			value := formatValue(s.fields[k])
			if value == "" {
				continue
			}
			if s.truncate {
				value = truncate(value, onePagerValueLimit)
			}
			section.Fields = append(section.Fields, TemplateField{Name: humanize(k), Value: value})
		}
		if len(section.Fields) > 0 {
			data.Sections = append(data.Sections, section)
		}
	}
	return data
}

func documentTitle(q store.Questionnaire, folderName string) string {
	for _, key := range []string{"title", "projectName", "name"} {
		if v, ok := q.BasicInfo[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return folderName
}

// formatValue renders a questionnaire answer as plain text.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := formatValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := formatValue(val[k]); s != "" {
				parts = append(parts, humanize(k)+": "+s)
			}
		}
		return strings.Join(parts, "; ")
	default:
		return fmt.Sprint(val)
	}
}

// humanize turns camelCase or snake_case keys into title words.
func humanize(key string) string {
	var b strings.Builder
	prevLower := false
	for i, r := range key {
		switch {
		case r == '_' || r == '-':
			b.WriteRune(' ')
			prevLower = false
			continue
		case unicode.IsUpper(r) && prevLower:
			b.WriteRune(' ')
		}
		if i == 0 {
			r = unicode.ToUpper(r)
		}
		b.WriteRune(r)
		prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
	}
	return b.String()
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
