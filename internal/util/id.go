package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random identifier, optionally prefixed ("draft_3f2c...").
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// FolderName derives a durable storage folder from a title: the title's slug
// plus a short random suffix so equal titles never collide.
func FolderName(title string) string {
	slug := Slugify(title)
	if len(slug) > 60 {
		slug = strings.Trim(slug[:60], "-")
	}
	if slug == "" {
		slug = "case-study"
	}
	return slug + "-" + NewID("")[:8]
}
