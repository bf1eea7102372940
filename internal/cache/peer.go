package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"casebook/internal/blob"
)

// Peer publishes a listing version shared by every process over the same
// store. Invalidate bumps it; Read treats a version it has not loaded as
// stale.
type Peer interface {
	Version(ctx context.Context) (string, error)
	Bump(ctx context.Context) error
}

const (
	redisVersionKey = "casebook:listing:version"
	blobVersionKey  = "listing/version"
)

// RedisPeer keeps the version in a Redis counter.
type RedisPeer struct {
	client *redis.Client
	key    string
}

func NewRedisPeer(client *redis.Client) *RedisPeer {
	return &RedisPeer{client: client, key: redisVersionKey}
}

func (p *RedisPeer) Version(ctx context.Context) (string, error) {
	v, err := p.client.Get(ctx, p.key).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("read listing version: %w", err)
	}
	return v, nil
}

func (p *RedisPeer) Bump(ctx context.Context) error {
	if err := p.client.Incr(ctx, p.key).Err(); err != nil {
		return fmt.Errorf("bump listing version: %w", err)
	}
	return nil
}

// BlobPeer keeps the version as a random token next to the case studies, for
// deployments without Redis.
type BlobPeer struct {
	blobs blob.Store
}

func NewBlobPeer(blobs blob.Store) *BlobPeer {
	return &BlobPeer{blobs: blobs}
}

func (p *BlobPeer) Version(ctx context.Context) (string, error) {
	data, err := p.blobs.Get(ctx, blobVersionKey)
	if errors.Is(err, blob.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read listing version: %w", err)
	}
	return string(data), nil
}

func (p *BlobPeer) Bump(ctx context.Context) error {
	if err := p.blobs.Put(ctx, blobVersionKey, []byte(uuid.NewString()), "text/plain"); err != nil {
		return fmt.Errorf("bump listing version: %w", err)
	}
	return nil
}
