package storage

import (
	"context"
	"io"
)

type PutInput struct {
	// Key is the full object key, e.g. "webhooks/stripe/evt_123.json".
	Key         string
	ContentType string
}

type PutResult struct {
	Key string
	URL string
}

// Storage archives raw payloads for audit and replay.
type Storage interface {
	Put(ctx context.Context, r io.Reader, in PutInput) (PutResult, error)
	Delete(ctx context.Context, key string) error
}
