package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"

	"stackhut-runner/config"
	"stackhut-runner/models"
)

const copyChunkSize = 32 * 1024

// BlobStore is a uniform get/put of named blobs. Failures are returned as
// models.RPCError values of kind Storage.
type BlobStore interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	// Store writes data under key and returns a locator for it
	Store(ctx context.Context, key string, data []byte) (string, error)
}

// LocalBlobStore implements BlobStore on the local filesystem
type LocalBlobStore struct {
	basePath string
}

func NewLocalBlobStore(basePath string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, models.NewStorageError("init", basePath, err)
	}
	return &LocalBlobStore{basePath: basePath}, nil
}

func (s *LocalBlobStore) path(key string) (string, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.basePath, fullPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes %s", key, s.basePath)
	}
	return fullPath, nil
}

func (s *LocalBlobStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return nil, models.NewStorageError("fetch", key, err)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, models.NewStorageError("fetch", key, err)
	}
	return data, nil
}

func (s *LocalBlobStore) Store(ctx context.Context, key string, data []byte) (string, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return "", models.NewStorageError("store", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", models.NewStorageError("store", key, err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", models.NewStorageError("store", key, err)
	}
	return fullPath, nil
}

// s3API is the part of *s3.Client the store needs
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3BlobStore implements BlobStore on S3. Keys are namespaced under the task id
// and stored objects are public-read.
type S3BlobStore struct {
	client   s3API
	bucket   string
	region   string
	taskID   string
	maxBytes int64
}

func NewS3BlobStore(ctx context.Context, task *models.Task, cfg config.StorageConfig) (*S3BlobStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if task.Credentials.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(task.Credentials.AccessKeyID, task.Credentials.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, models.NewStorageError("init", cfg.Bucket, err)
	}

	// Instrument AWS SDK v2 with X-Ray for automatic S3 operation tracing
	awsv2.AWSV2Instrumentor(&awsCfg.APIOptions)

	return newS3BlobStore(s3.NewFromConfig(awsCfg), task.ID, cfg), nil
}

func newS3BlobStore(client s3API, taskID string, cfg config.StorageConfig) *S3BlobStore {
	return &S3BlobStore{
		client:   client,
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		taskID:   taskID,
		maxBytes: cfg.MaxBlobBytes,
	}
}

// ObjectKey namespaces key under the task id
func (s *S3BlobStore) ObjectKey(key string) string {
	return s.taskID + "/" + key
}

// PublicURL is the unsigned, non-expiring URL of a public-read object
func (s *S3BlobStore) PublicURL(key string) string {
	segments := strings.Split(s.ObjectKey(key), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, strings.Join(segments, "/"))
}

func (s *S3BlobStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ObjectKey(key)),
	})
	if err != nil {
		return nil, models.NewStorageError("fetch", s.ObjectKey(key), err)
	}
	defer output.Body.Close()

	var body io.Reader = output.Body
	if s.maxBytes > 0 {
		body = io.LimitReader(output.Body, s.maxBytes+1)
	}
	var buf bytes.Buffer
	if _, err := io.CopyBuffer(&buf, body, make([]byte, copyChunkSize)); err != nil {
		return nil, models.NewStorageError("fetch", s.ObjectKey(key), err)
	}
	if s.maxBytes > 0 && int64(buf.Len()) > s.maxBytes {
		return nil, models.NewStorageError("fetch", s.ObjectKey(key),
			fmt.Errorf("object larger than %d bytes", s.maxBytes))
	}
	return buf.Bytes(), nil
}

func (s *S3BlobStore) Store(ctx context.Context, key string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.ObjectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentTypeFor(key)),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", models.NewStorageError("store", s.ObjectKey(key), err)
	}
	return s.PublicURL(key), nil
}

// NewBlobStore creates the store matching the task's execution mode
func NewBlobStore(ctx context.Context, task *models.Task, workDir string, cfg config.StorageConfig) (BlobStore, error) {
	switch task.Mode {
	case models.ModeRemote:
		return NewS3BlobStore(ctx, task, cfg)
	case models.ModeLocal:
		return NewLocalBlobStore(workDir)
	default:
		return nil, fmt.Errorf("unknown execution mode: %s", task.Mode)
	}
}

func contentTypeFor(key string) string {
	switch filepath.Ext(key) {
	case ".json":
		return "application/json"
	case ".log", ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
