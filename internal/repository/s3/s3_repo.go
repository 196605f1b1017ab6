package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"

	"github.com/pedro9bee/rag-qdrant-neo4j/internal/domain/entity"
)

type S3Repo struct {
	client *minio.Client
}

func NewS3Repo(client *minio.Client) *S3Repo {
	return &S3Repo{client: client}
}

// Stat returns the object size in bytes without downloading it. A missing
// object maps to entity.ErrObjectNotFound.
func (s *S3Repo) Stat(ctx context.Context, bucket, key string) (int64, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return 0, entity.ErrObjectNotFound
		}
		return 0, fmt.Errorf("stat %s/%s: %w", bucket, key, err)
	}
	return info.Size, nil
}

// Download fetches the full object as text.
func (s *S3Repo) Download(ctx context.Context, bucket, key string) (string, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", entity.ErrObjectNotFound
		}
		return "", fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}
	return string(data), nil
}
