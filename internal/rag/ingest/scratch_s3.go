package ingest

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Scratch stages fetched file bytes in an S3 bucket, keyed by document and
// file name, instead of the default local no-op. Used when
// ingestion.scratch.s3_bucket is configured.
type S3Scratch struct {
	client *s3.Client
	bucket string
}

// NewS3Scratch builds an S3Scratch for bucket in region, using the default
// AWS credential chain (environment, shared config, instance role).
func NewS3Scratch(ctx context.Context, bucket, region string) (*S3Scratch, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Scratch{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

func (s *S3Scratch) Put(ctx context.Context, documentID, fileName string, content []byte) error {
	key := fmt.Sprintf("scratch/%s/%s", documentID, fileName)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	})
	return err
}
