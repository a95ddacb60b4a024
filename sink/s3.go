package sink

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/AnkitD0811/cloud-security-scanner/report"
)

// PutObjectAPI is the part of *s3.Client the sink needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3 struct {
	client PutObjectAPI
	bucket string
	prefix string
}

type S3Option func(*S3)

func WithS3Prefix(prefix string) S3Option {
	return func(s *S3) {
		prefix = strings.TrimLeft(strings.TrimSpace(prefix), "/")
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		s.prefix = prefix
	}
}

func WithS3Client(client PutObjectAPI) S3Option {
	return func(s *S3) {
		if client != nil {
			s.client = client
		}
	}
}

func NewS3(bucket string, opts ...S3Option) (*S3, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	s := &S3{bucket: bucket}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	return s, nil
}

type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// NewS3FromConfig resolves credentials from the default AWS chain. A custom
// endpoint switches to path-style addressing for MinIO and LocalStack.
func NewS3FromConfig(ctx context.Context, cfg S3Config) (*S3, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3(cfg.Bucket, WithS3Client(client), WithS3Prefix(cfg.Prefix))
}

func (s *S3) Key(name string) string {
	return s.prefix + name + ".json"
}

func (s *S3) Persist(ctx context.Context, r report.Report) (string, error) {
	raw, err := report.EncodeJSON(r)
	if err != nil {
		return "", err
	}
	key := s.Key(r.Name)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
		Metadata: map[string]string{
			"findings": fmt.Sprint(r.Summary.Count),
			"high":     fmt.Sprint(r.Summary.High),
		},
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
