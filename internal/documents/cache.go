package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// Cache stores rendered documents by key.
type Cache interface {
	// Get returns the cached document and true, or false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, data []byte) error
}

// NoCache is used when no object store is configured.
type NoCache struct{}

func (NoCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NoCache) Put(context.Context, string, []byte) error         { return nil }

// S3Config locates the document bucket. Endpoint targets S3-compatible
// stores such as MinIO and forces path-style addressing.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
}

// S3Cache keeps rendered documents in an S3 bucket.
type S3Cache struct {
	bucket *string
	s3     s3iface.S3API
}

// NewS3Cache opens an AWS session using the default credential chain.
func NewS3Cache(cfg S3Config) (*S3Cache, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	config := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		config.Endpoint = aws.String(cfg.Endpoint)
		config.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(config)
	if err != nil {
		return nil, fmt.Errorf("new aws session: %w", err)
	}
	return newS3Cache(cfg.Bucket, s3.New(sess)), nil
}

func newS3Cache(bucket string, client s3iface.S3API) *S3Cache {
	return &S3Cache{bucket: aws.String(bucket), s3: client}
}

func (c *S3Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := c.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: c.bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get s3 object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read s3 object: %w", err)
	}
	return data, true, nil
}

func (c *S3Cache) Put(ctx context.Context, key string, data []byte) error {
	_, err := c.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      c.bucket,
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentTypePDF),
	})
	if err != nil {
		return fmt.Errorf("failed to put s3 object: %w", err)
	}
	return nil
}
