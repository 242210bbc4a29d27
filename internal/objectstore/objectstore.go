// Package objectstore reads extraction output and writes per-page review
// artifacts in an S3-compatible bucket through minio-go.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/encrypt"
	"github.com/rs/zerolog"

	"github.com/helixir/document-review-service/internal/config"
	"github.com/helixir/document-review-service/internal/domain"
)

// Location addresses one object.
type Location struct {
	Bucket string
	Key    string
}

// String renders the location as an s3:// URI.
func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// ParseURI parses "s3://bucket/key".
func ParseURI(uri string) (Location, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, domain.NewMalformedInputError("object uri", uri, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return Location{}, domain.NewMalformedInputError("object uri", fmt.Sprintf("expected s3://bucket/key, got %q", uri), nil)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return Location{}, domain.NewMalformedInputError("object uri", fmt.Sprintf("missing object key in %q", uri), nil)
	}
	return Location{Bucket: u.Host, Key: key}, nil
}

// Store is the object store surface the service depends on.
type Store interface {
	// Get returns the object's bytes. A missing object is *domain.NotFoundError.
	Get(ctx context.Context, loc Location) ([]byte, error)
	// GetJSON decodes the object into v.
	GetJSON(ctx context.Context, loc Location, v interface{}) error
	// Put writes data with the given content type.
	Put(ctx context.Context, loc Location, data []byte, contentType string) error
	// PutJSON writes v as application/json.
	PutJSON(ctx context.Context, loc Location, v interface{}) error
	// Delete removes the object. Deleting a missing object succeeds.
	Delete(ctx context.Context, loc Location) error
	// Bucket returns the default bucket.
	Bucket() string
}

// objectAPI is the subset of *minio.Client used here.
type objectAPI interface {
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	BucketExists(ctx context.Context, bucketName string) (bool, error)
}

// Compile-time interface verification.
var _ Store = (*MinioStore)(nil)

// MinioStore implements Store with minio-go.
type MinioStore struct {
	client objectAPI
	bucket string
	sse    encrypt.ServerSide
	logger zerolog.Logger
}

// New creates a MinioStore from configuration.
func New(cfg config.ObjectStoreConfig, logger zerolog.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	var sse encrypt.ServerSide
	if cfg.KMSKeyID != "" {
		sse, err = encrypt.NewSSEKMS(cfg.KMSKeyID, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to configure kms encryption: %w", err)
		}
	}

	return &MinioStore{
		client: client,
		bucket: cfg.Bucket,
		sse:    sse,
		logger: logger.With().Str("component", "objectstore").Logger(),
	}, nil
}

// Bucket returns the default bucket.
func (s *MinioStore) Bucket() string {
	return s.bucket
}

// Ping checks that the default bucket is reachable.
func (s *MinioStore) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

// Get reads the whole object.
func (s *MinioStore) Get(ctx context.Context, loc Location) ([]byte, error) {
	loc = s.withDefaultBucket(loc)

	obj, err := s.client.GetObject(ctx, loc.Bucket, loc.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapError(loc, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.mapError(loc, err)
	}
	return data, nil
}

// GetJSON reads and decodes a JSON object. Undecodable content is
// *domain.MalformedInputError.
func (s *MinioStore) GetJSON(ctx context.Context, loc Location, v interface{}) error {
	data, err := s.Get(ctx, loc)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return domain.NewMalformedInputError(s.withDefaultBucket(loc).String(), "invalid JSON", err)
	}
	return nil
}

// Put writes data as one object.
func (s *MinioStore) Put(ctx context.Context, loc Location, data []byte, contentType string) error {
	loc = s.withDefaultBucket(loc)

	_, err := s.client.PutObject(ctx, loc.Bucket, loc.Key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:          contentType,
		ServerSideEncryption: s.sse,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", loc, err)
	}

	s.logger.Debug().Str("object", loc.String()).Str("content_type", contentType).Int("bytes", len(data)).Msg("wrote object")
	return nil
}

// PutJSON writes v as a JSON object.
func (s *MinioStore) PutJSON(ctx context.Context, loc Location, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", s.withDefaultBucket(loc), err)
	}
	return s.Put(ctx, loc, data, "application/json")
}

// Delete removes an object.
func (s *MinioStore) Delete(ctx context.Context, loc Location) error {
	loc = s.withDefaultBucket(loc)
	if err := s.client.RemoveObject(ctx, loc.Bucket, loc.Key, minio.RemoveObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete %s: %w", loc, err)
	}
	return nil
}

func (s *MinioStore) withDefaultBucket(loc Location) Location {
	if loc.Bucket == "" {
		loc.Bucket = s.bucket
	}
	return loc
}

func (s *MinioStore) mapError(loc Location, err error) error {
	if isNotFound(err) {
		return domain.NewNotFoundError("object", loc.String())
	}
	return fmt.Errorf("failed to read %s: %w", loc, err)
}

func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey"
	}
	return false
}
