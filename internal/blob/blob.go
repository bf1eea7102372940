// Package blob defines the object-storage contract the lifecycle engine
// persists drafts, case studies and review threads through.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("blob: key not found")

// Store is an opaque key/value blob store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	// List returns every key under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

const (
	ContentTypeJSON = "application/json"
	ContentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)
