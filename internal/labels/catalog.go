package labels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"casebook/internal/blob"
)

// CatalogKey is where BlobCatalog keeps the catalog document.
const CatalogKey = "labels/catalog.json"

// CatalogProvider supplies the current allowed values per category. The
// result may be empty or partial; Validate passes unknown categories through.
type CatalogProvider interface {
	Catalog(ctx context.Context) (Set, error)
}

// StaticCatalog serves a fixed catalog.
type StaticCatalog Set

func (c StaticCatalog) Catalog(context.Context) (Set, error) {
	return Set(c).Clone(), nil
}

// BlobCatalog reads the catalog from the blob store. A missing document is an
// empty catalog.
type BlobCatalog struct {
	blobs blob.Store
}

func NewBlobCatalog(blobs blob.Store) *BlobCatalog {
	return &BlobCatalog{blobs: blobs}
}

func (c *BlobCatalog) Catalog(ctx context.Context) (Set, error) {
	data, err := c.blobs.Get(ctx, CatalogKey)
	if errors.Is(err, blob.ErrNotFound) {
		return Set{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load label catalog: %w", err)
	}
	catalog, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode label catalog: %w", err)
	}
	return catalog, nil
}

// Save replaces the stored catalog.
func (c *BlobCatalog) Save(ctx context.Context, catalog Set) error {
	data, err := json.Marshal(catalog.Clone())
	if err != nil {
		return fmt.Errorf("marshal label catalog: %w", err)
	}
	if err := c.blobs.Put(ctx, CatalogKey, data, blob.ContentTypeJSON); err != nil {
		return fmt.Errorf("save label catalog: %w", err)
	}
	return nil
}

// FileCatalog reads a YAML document mapping categories to value lists:
//
//	client: [Acme, Globex]
//	sector: [Finance]
type FileCatalog struct {
	path string
}

func NewFileCatalog(path string) *FileCatalog {
	return &FileCatalog{path: path}
}

func (c *FileCatalog) Catalog(context.Context) (Set, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read label catalog %s: %w", c.path, err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a YAML catalog document.
func ParseYAML(data []byte) (Set, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse label catalog: %w", err)
	}
	return Set(raw).Clone(), nil
}
