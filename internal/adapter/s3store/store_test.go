package s3store

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/couchcryptid/storm-vp-classifier/internal/scheme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucket struct {
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	d, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("no such key")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(d))}, nil
}

func (f *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	d, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = d
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestStore_PutGet(t *testing.T) {
	bucket := &fakeBucket{objects: map[string][]byte{}, types: map[string]string{}}
	s := newStore(bucket, "radar", "schemes/")
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "vpc_20eig20clus_reduced", []byte("artifact")))
	assert.Contains(t, bucket.objects, "schemes/vpc_20eig20clus_reduced.vpc")
	assert.Equal(t, contentType, bucket.types["schemes/vpc_20eig20clus_reduced.vpc"])

	got, err := s.Get(ctx, "vpc_20eig20clus_reduced")
	require.NoError(t, err)
	assert.Equal(t, []byte("artifact"), got)
}

func TestStore_GetMissing(t *testing.T) {
	s := newStore(&fakeBucket{objects: map[string][]byte{}}, "radar", "")
	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, scheme.ErrNotFound)
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Options{Region: "eu-north-1"})
	require.Error(t, err)
}
