package services

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BlobStore persists generated artifacts such as ledger exports
type BlobStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// s3API is the subset of the S3 client used by S3BlobStore
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3BlobStore stores objects under a bucket prefix
type S3BlobStore struct {
	client s3API
	bucket string
	prefix string
	region string
}

// NewS3BlobStore loads the default AWS credential chain for region
func NewS3BlobStore(ctx context.Context, region, bucket, prefix string) (*S3BlobStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newS3BlobStore(s3.NewFromConfig(cfg), region, bucket, prefix), nil
}

func newS3BlobStore(client s3API, region, bucket, prefix string) *S3BlobStore {
	return &S3BlobStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		region: region,
	}
}

// Put uploads body and returns the object URL
func (s *S3BlobStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	objectKey := key
	if s.prefix != "" {
		objectKey = path.Join(s.prefix, key)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to s3: %w", objectKey, err)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, objectKey), nil
}
