package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/delaneyj/statesync/config"
	"go.uber.org/multierr"
)

// S3API is the subset of *s3.Client used by S3.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 stores each key as an object under prefix in bucket. Every call is
// bounded by timeout.
type S3 struct {
	client  S3API
	bucket  string
	prefix  string
	timeout time.Duration
}

func NewS3(client S3API, bucket, prefix string, timeout time.Duration) *S3 {
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	return &S3{client: client, bucket: bucket, prefix: prefix, timeout: timeout}
}

// NewS3Client builds a client from static settings. Credentials are only set
// when both parts of the key pair are given.
func NewS3Client(cfg config.S3) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.PathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: cfg.AccessKeyID, SecretAccessKey: cfg.SecretAccessKey, Source: "statesync config"}, nil
		})
	}
	return s3.New(opts)
}

func (s *S3) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *S3) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	ctx, cancel := s.ctx()
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("kv: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("kv: s3 get %s: %w", key, err)
	}
	return data, nil
}

func (s *S3) Set(key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.prefix + key),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("kv: s3 put %s: %w", key, err)
	}
	return nil
}

// Delete checks for the object first since S3 deletes succeed on missing
// keys.
func (s *S3) Delete(key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("kv: s3 head %s: %w", key, err)
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		return false, fmt.Errorf("kv: s3 delete %s: %w", key, err)
	}
	return true, nil
}

func (s *S3) Keys() ([]string, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("kv: s3 list: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, strings.TrimPrefix(*obj.Key, s.prefix))
			}
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *S3) Clear() error {
	keys, err := s.Keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		_, e := s.Delete(k)
		err = multierr.Append(err, e)
	}
	return err
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
