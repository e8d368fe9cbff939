package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/blinktext/internal/config"
)

const (
	defaultPrefix = "texts/"
	contentType   = "text/plain; charset=utf-8"
	// ciphertext of the largest allowed text stays far below this
	maxObjectSize = 8 << 20
)

// Service stores ciphertext bodies as objects in a single MinIO bucket.
type Service struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewService(cfg config.MinIOConfig) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return NewServiceFromClient(client, cfg.BucketName, cfg.Prefix), nil
}

// NewServiceFromClient wraps an existing client.
func NewServiceFromClient(client *minio.Client, bucket, prefix string) *Service {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Service{client: client, bucket: bucket, prefix: prefix}
}

func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket exists: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}

	return nil
}

func (s *Service) Put(ctx context.Context, key, content string) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.objectKey(key), strings.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	return nil
}

func (s *Service) Get(ctx context.Context, key string) (string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxObjectSize))
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}

	return string(data), nil
}

// Delete removes the object; a missing object is not an error.
func (s *Service) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.objectKey(key), minio.RemoveObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("delete object: %w", err)
	}

	return nil
}

// Ping reports whether the bucket is reachable.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func (s *Service) objectKey(key string) string {
	return s.prefix + normalizePath(key)
}

func normalizePath(p string) string {
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}
