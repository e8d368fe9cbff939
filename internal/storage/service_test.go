package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinktext/internal/config"
)

func TestObjectKey(t *testing.T) {
	s := NewServiceFromClient(nil, "blinktext", "")
	assert.Equal(t, "texts/abc", s.objectKey("abc"))
	assert.Equal(t, "texts/etc/passwd", s.objectKey("../../etc/passwd"))
	assert.Equal(t, "texts/a/b", s.objectKey("/a//b/"))

	custom := NewServiceFromClient(nil, "blinktext", "bodies")
	assert.Equal(t, "bodies/abc", custom.objectKey("abc"))
}

// Runs against a live server only when BLINKTEXT_TEST_MINIO is set, e.g. localhost:9000.
func TestService_RoundTrip(t *testing.T) {
	endpoint := os.Getenv("BLINKTEXT_TEST_MINIO")
	if endpoint == "" {
		t.Skip("BLINKTEXT_TEST_MINIO not set")
	}

	s, err := NewService(config.MinIOConfig{
		Endpoint:   endpoint,
		AccessKey:  os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey:  os.Getenv("MINIO_SECRET_KEY"),
		BucketName: "blinktext-test",
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.EnsureBucket(ctx))

	key := uuid.NewString()
	require.NoError(t, s.Put(ctx, key, "U2FsdGVkX1+body"))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "U2FsdGVkX1+body", got)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))
}
