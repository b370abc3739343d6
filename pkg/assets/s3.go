package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3Client is the subset of the S3 client used by S3Store.
type s3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Config holds bucket settings. Credentials come from the default AWS chain.
type S3Config struct {
	Bucket string
	Region string
	Prefix string
}

// S3Store writes assets as objects in a bucket.
type S3Store struct {
	bucket string
	prefix string
	client s3Client
}

// NewS3Store loads the default AWS config for cfg.Region.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	var opts []func(*awscfg.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awscfg.WithRegion(cfg.Region))
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newS3Store(cfg, s3.NewFromConfig(awsCfg)), nil
}

func newS3Store(cfg S3Config, client s3Client) *S3Store {
	return &S3Store{
		bucket: strings.TrimSpace(cfg.Bucket),
		prefix: strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
		client: client,
	}
}

// Save uploads data and returns an s3:// URI as the storage id.
func (s *S3Store) Save(ctx context.Context, data []byte, filename string, policy CollisionPolicy) (string, error) {
	name, err := CleanFilename(filename)
	if err != nil {
		return "", err
	}
	key := s.key(name)

	switch policy {
	case Replace:
	case Fail:
		exists, err := s.exists(ctx, key)
		if err != nil {
			return "", err
		}
		if exists {
			return "", fmt.Errorf("s3://%s/%s: %w", s.bucket, key, ErrExists)
		}
	case Rename:
		for n := 0; ; n++ {
			exists, err := s.exists(ctx, key)
			if err != nil {
				return "", err
			}
			if !exists {
				break
			}
			if n >= maxRenameAttempts {
				return "", fmt.Errorf("no free key for %s", name)
			}
			key = s.key(numbered(name, n))
		}
	default:
		return "", fmt.Errorf("unsupported collision policy %s", policy)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put s3 object %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func (s *S3Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *S3Store) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, fmt.Errorf("head s3 object %s: %w", key, err)
}
