// Package minio implements a catalog statistics source backed by MinIO or
// any S3-compatible object storage. The ingestion side publishes a stats
// object on its own schedule; this source just reads the latest object.
package minio

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"

	"github.com/scoutdex/scoutdex/catalog"
)

// Source reads zstd/JSON stats snapshots from one object.
type Source struct {
	client *minio.Client
	bucket string
	object string
}

// NewSource creates a stats source reading bucket/object.
func NewSource(client *minio.Client, bucket, object string) *Source {
	return &Source{
		client: client,
		bucket: bucket,
		object: object,
	}
}

// FetchStats implements catalog.Source.
func (s *Source) FetchStats(ctx context.Context) (catalog.Stats, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.object, minio.GetObjectOptions{})
	if err != nil {
		return catalog.Stats{}, fmt.Errorf("minio stats source: get %s/%s: %w", s.bucket, s.object, err)
	}
	defer obj.Close()

	stats, err := catalog.DecodeStats(obj)
	if err != nil {
		return catalog.Stats{}, fmt.Errorf("minio stats source: %s/%s: %w", s.bucket, s.object, err)
	}
	return stats, nil
}

var _ catalog.Source = (*Source)(nil)
