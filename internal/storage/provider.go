package storage

import (
	"context"
	"io"
)

type Object struct {
	Name string
	Size int64
}

// Provider is the object storage used to distribute model artifacts. The
// server only reads from it at startup; tests and the training side write
// through PutObject.
type Provider interface {
	CreateBucket(ctx context.Context, bucket string) error

	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	DownloadObject(ctx context.Context, bucket, key, filename string) error

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)
}
