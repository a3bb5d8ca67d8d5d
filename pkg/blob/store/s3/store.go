// Package s3 implements blob storage on Amazon S3 or S3-compatible services
// (MinIO, Ceph RGW).
//
// Object keys mirror the on-disk sharded layout: <prefix><h[0:2]>/<h[2:4]>/<hash>.
// S3 PUTs are atomic per key, so concurrent writers of the same hash are safe
// without extra coordination: both carry identical bytes and the last complete
// write wins.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/marmos91/dedupfs/pkg/blob"
)

// deleteBatchMax is the S3 DeleteObjects per-request limit.
const deleteBatchMax = 1000

// Store is an S3-backed implementation of blob.Store.
//
// Safe for concurrent use; the underlying S3 client is goroutine-safe.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// Config contains configuration for the S3 blob store.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string `mapstructure:"bucket" validate:"required" yaml:"bucket"`

	// KeyPrefix is an optional prefix for all object keys,
	// e.g. "dedupfs/blobs/".
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`

	// Region is the AWS region. Ignored when Endpoint targets an
	// S3-compatible service that does not use regions.
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint overrides the S3 endpoint for S3-compatible services.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// UsePathStyle forces path-style addressing (required by MinIO).
	UsePathStyle bool `mapstructure:"use_path_style" yaml:"use_path_style"`

	// AccessKeyID / SecretAccessKey are static credentials. When empty the
	// default AWS credential chain is used.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
}

// New creates an S3 blob store from an already configured client.
func New(client *s3.Client, bucket, keyPrefix string) (*Store, error) {
	if client == nil {
		return nil, errors.New("s3 client is required")
	}
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &Store{
		client:    client,
		bucket:    bucket,
		keyPrefix: keyPrefix,
	}, nil
}

// NewFromConfig builds the S3 client from cfg and returns the store.
func NewFromConfig(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return New(client, cfg.Bucket, cfg.KeyPrefix)
}

// keyFor returns the object key for a hash.
func (s *Store) keyFor(h blob.Hash) string {
	return s.keyPrefix + h.ShardKey()
}

// Write stores data under h via PutObject.
func (s *Store) Write(ctx context.Context, h blob.Hash, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.keyFor(h)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", h, err)
	}
	return nil
}

// Read returns the bytes stored under h.
func (s *Store) Read(ctx context.Context, h blob.Hash) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.keyFor(h)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, blob.ErrBlobNotFound
		}
		return nil, fmt.Errorf("s3 get %s: %w", h, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: read body: %w", h, err)
	}
	return data, nil
}

// Exists reports presence via HeadObject.
func (s *Store) Exists(ctx context.Context, h blob.Hash) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.keyFor(h)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head %s: %w", h, err)
	}
	return true, nil
}

// Delete removes the object. S3 DeleteObject on a missing key succeeds, which
// matches the contract.
func (s *Store) Delete(ctx context.Context, h blob.Hash) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.keyFor(h)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", h, err)
	}
	return nil
}

// DeleteMany removes blobs in DeleteObjects batches of up to 1000 keys.
// Keys reported as errors by S3 are returned as failed; the rest of the
// batch proceeds.
func (s *Store) DeleteMany(ctx context.Context, hashes []blob.Hash) ([]blob.Hash, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	keyToHash := make(map[string]blob.Hash, len(hashes))
	var failed []blob.Hash

	for start := 0; start < len(hashes); start += deleteBatchMax {
		end := start + deleteBatchMax
		if end > len(hashes) {
			end = len(hashes)
		}
		batch := hashes[start:end]

		objects := make([]types.ObjectIdentifier, 0, len(batch))
		for _, h := range batch {
			key := s.keyFor(h)
			keyToHash[key] = h
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			// The whole batch failed; mark every key for retry.
			failed = append(failed, batch...)
			continue
		}
		for _, e := range out.Errors {
			if e.Key == nil {
				continue
			}
			if h, ok := keyToHash[*e.Key]; ok {
				failed = append(failed, h)
			}
		}
	}

	if len(failed) > 0 {
		return failed, fmt.Errorf("failed to delete %d of %d blobs", len(failed), len(hashes))
	}
	return nil, nil
}

// Walk lists every object under the key prefix via ListObjectsV2 pagination.
// Keys whose final segment is not a valid content hash are skipped.
func (s *Store) Walk(ctx context.Context, fn func(info blob.ObjectInfo) error) error {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if s.keyPrefix != "" {
		input.Prefix = aws.String(s.keyPrefix)
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("s3 list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			key := *obj.Key
			if idx := strings.LastIndexByte(key, '/'); idx >= 0 {
				key = key[idx+1:]
			}
			h, parseErr := blob.ParseHash(key)
			if parseErr != nil {
				continue
			}

			info := blob.ObjectInfo{Hash: h}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.LastModified != nil {
				info.Modified = *obj.LastModified
			}
			if err := fn(info); err != nil {
				return err
			}
		}
	}
	return nil
}

// HealthCheck verifies the bucket is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 head bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Close releases nothing; the S3 client has no teardown.
func (s *Store) Close() error {
	return nil
}

// isNotFoundError returns true if the error indicates the object doesn't exist.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound" || code == "404"
	}

	return false
}

// Ensure Store implements blob.Store.
var _ blob.Store = (*Store)(nil)
