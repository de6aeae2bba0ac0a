package services

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3BlobStore_Put(t *testing.T) {
	fake := &fakeS3{}
	store := newS3BlobStore(fake, "ap-south-1", "ledger-exports", "/exports/")

	url, err := store.Put(context.Background(), "campaign-7.xlsx", []byte("data"), "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "https://ledger-exports.s3.ap-south-1.amazonaws.com/exports/campaign-7.xlsx", url)
	assert.Equal(t, "exports/campaign-7.xlsx", aws.ToString(fake.input.Key))
	assert.Equal(t, "ledger-exports", aws.ToString(fake.input.Bucket))
	assert.Equal(t, []byte("data"), fake.body)
}

func TestS3BlobStore_PutError(t *testing.T) {
	store := newS3BlobStore(&fakeS3{err: errors.New("denied")}, "ap-south-1", "b", "")
	_, err := store.Put(context.Background(), "k", []byte("x"), "text/plain")
	assert.Error(t, err)
}
