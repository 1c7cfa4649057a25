package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"package-registry/config"
	"package-registry/registry"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/rs/zerolog/log"
)

// ErrIncompleteS3Config is returned when the S3 configuration is incomplete
var ErrIncompleteS3Config = errors.New("incomplete S3 configuration")

var _ registry.BlobStore = (*S3Registry)(nil)

// S3Registry stores blobs in an S3 compatible bucket
type S3Registry struct {
	S3Client *s3.Client
	Timeout  time.Duration
	Bucket   string
}

// New creates a new s3-based blob store. Without a static key pair the
// default AWS credential chain (environment, shared config, instance role)
// is used. A custom endpoint switches to path-style addressing.
func New(ctx context.Context, cfg config.S3Config) (*S3Registry, error) {
	if strings.TrimSpace(cfg.Region) == "" ||
		strings.TrimSpace(cfg.Bucket) == "" ||
		strings.TrimSpace(cfg.Timeout) == "" {
		return nil, fmt.Errorf("%w: region, bucket and timeout are required", ErrIncompleteS3Config)
	}

	hasKeyID := strings.TrimSpace(cfg.KeyID) != ""
	hasAccessKey := strings.TrimSpace(cfg.AccessKey) != ""
	if hasKeyID != hasAccessKey {
		return nil, fmt.Errorf("%w: key_id and access_key must be set together", ErrIncompleteS3Config)
	}

	timeoutDuration, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid S3 timeout value: %w", err)
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if hasKeyID {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.KeyID, cfg.AccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
			// most S3 compatible stores reject the newer default checksums
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
	})

	return &S3Registry{
		S3Client: s3Client,
		Timeout:  timeoutDuration,
		Bucket:   cfg.Bucket,
	}, nil
}

// StoreBlob uploads a blob, replacing an older copy
func (r *S3Registry) StoreBlob(ctx context.Context, digest string, content []byte) error {
	blobPath := r.getBlobPath(digest)

	uploader := manager.NewUploader(r.S3Client)

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	result, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(blobPath),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		var mu manager.MultiUploadFailure
		if errors.As(err, &mu) {
			log.Error().
				Err(mu).
				Str("upload_id", mu.UploadID()).
				Msg("multi-upload failure")

			return fmt.Errorf(
				"multi-upload failure (upload_id: %s): %w",
				mu.UploadID(),
				mu,
			)
		}

		log.Error().Err(err).Str("digest", digest).Msg("upload failure")

		return fmt.Errorf("upload failure: %w", err)
	}
	log.Info().
		Str("location", result.Location).
		Str("digest", digest).
		Msg("successfully uploaded blob to s3 bucket")

	return nil
}

// GetBlob retrieves a blob by digest
func (r *S3Registry) GetBlob(ctx context.Context, digest string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	object, err := r.S3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(r.getBlobPath(digest)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", registry.ErrBlobNotFound, digest)
		}

		return nil, fmt.Errorf("failed to get blob from S3: %w", err)
	}

	if object.Body == nil {
		return []byte{}, nil
	}
	defer func() {
		if cerr := object.Body.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("failed to close S3 object body")
		}
	}()

	content, err := io.ReadAll(object.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob content: %w", err)
	}

	return content, nil
}

// DeleteBlob deletes a blob by digest. S3 deletes are idempotent, so the
// object is looked up first to report unknown digests.
func (r *S3Registry) DeleteBlob(ctx context.Context, digest string) error {
	blobPath := r.getBlobPath(digest)

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	_, err := r.S3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(blobPath),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("failed to remove blob: %w: %s", registry.ErrBlobNotFound, digest)
		}

		return fmt.Errorf("failed to look up blob in S3: %w", err)
	}

	_, err = r.S3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(blobPath),
	})
	if err != nil {
		return fmt.Errorf("failed to delete blob from S3: %w", err)
	}

	return nil
}

func isNotFound(err error) bool {
	var (
		notFoundErr *types.NotFound
		noSuchKey   *types.NoSuchKey
	)

	return errors.As(err, &notFoundErr) || errors.As(err, &noSuchKey)
}

// getBlobPath returns the object key for a blob
func (r *S3Registry) getBlobPath(digest string) string {
	return path.Join("blobs", registry.BlobPath(digest)+".wasm")
}
