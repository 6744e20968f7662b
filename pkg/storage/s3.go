package storage

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/platinummonkey/groundwork/pkg/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/platinummonkey/groundwork/pkg/storage")

// PresignedRequest is a URL a client can use without credentials
type PresignedRequest struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// DocumentStore issues presigned URLs for document objects
type DocumentStore interface {
	PresignUpload(ctx context.Context, key, contentType string) (*PresignedRequest, error)
	PresignDownload(ctx context.Context, key, filename string) (*PresignedRequest, error)
	DeleteObject(ctx context.Context, key string) error
}

// S3Store handles object storage operations
type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	ttl       time.Duration
	now       func() time.Time
}

// NewS3Store creates a new S3 document store
func NewS3Store(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		// Static credentials for MinIO or explicit keys
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// ObjectKey builds the object key of a document. The document id keeps
// keys unique when two uploads share a file name.
func ObjectKey(projectID, documentID, name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	return fmt.Sprintf("projects/%s/documents/%s/%s", projectID, documentID, name)
}

// PresignUpload returns a PUT URL for key
func (s *S3Store) PresignUpload(ctx context.Context, key, contentType string) (*PresignedRequest, error) {
	ctx, span := s.startSpan(ctx, "S3.PresignUpload", key)
	defer span.End()

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to presign upload")
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}
	return s.result(req.URL, req.Method, req.SignedHeader), nil
}

// PresignDownload returns a GET URL for key that downloads as filename
func (s *S3Store) PresignDownload(ctx context.Context, key, filename string) (*PresignedRequest, error) {
	ctx, span := s.startSpan(ctx, "S3.PresignDownload", key)
	defer span.End()

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if filename != "" {
		input.ResponseContentDisposition = aws.String(fmt.Sprintf("attachment; filename=%q", filename))
	}

	req, err := s.presigner.PresignGetObject(ctx, input, s3.WithPresignExpires(s.ttl))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to presign download")
		return nil, fmt.Errorf("failed to presign download: %w", err)
	}
	return s.result(req.URL, req.Method, nil), nil
}

// DeleteObject deletes an object
func (s *S3Store) DeleteObject(ctx context.Context, key string) error {
	ctx, span := s.startSpan(ctx, "S3.DeleteObject", key)
	defer span.End()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete object")
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// HealthCheck verifies S3 connectivity
func (s *S3Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

func (s *S3Store) startSpan(ctx context.Context, name, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("s3.bucket", s.bucket),
		attribute.String("s3.key", key),
	))
}

func (s *S3Store) result(url, method string, signed http.Header) *PresignedRequest {
	out := &PresignedRequest{
		URL:       url,
		Method:    method,
		ExpiresAt: s.now().Add(s.ttl).UTC(),
	}
	for name, values := range signed {
		if strings.EqualFold(name, "host") || len(values) == 0 {
			continue
		}
		if out.Headers == nil {
			out.Headers = map[string]string{}
		}
		out.Headers[name] = values[0]
	}
	return out
}
