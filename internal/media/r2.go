package media

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// objectAPI is the subset of the S3 client used for images.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type R2Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	PublicURL string
}

// R2 keeps images in a Cloudflare R2 bucket through its S3 compatible API.
type R2 struct {
	api       objectAPI
	bucket    string
	publicURL string
}

func NewR2(ctx context.Context, cfg R2Config) (*R2, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = joinURL(cfg.Endpoint, cfg.Bucket)
	}
	return newR2(client, cfg.Bucket, publicURL), nil
}

func newR2(api objectAPI, bucket, publicURL string) *R2 {
	return &R2{api: api, bucket: bucket, publicURL: publicURL}
}

func (r *R2) Upload(ctx context.Context, name, contentType string, body io.Reader, size int64) (*Object, error) {
	if size == 0 {
		return nil, ErrEmptyUpload
	}

	// Request signing needs a seekable body.
	seeker, ok := body.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("failed to read upload: %w", err)
		}
		seeker = bytes.NewReader(data)
		size = int64(len(data))
	}

	key := objectKey(name)
	input := &s3.PutObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
		Body:   seeker,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := r.api.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return &Object{ID: key, URL: joinURL(r.publicURL, key)}, nil
}

func (r *R2) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := r.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(id),
	}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	return nil
}
