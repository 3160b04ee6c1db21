// Package snapshot backs up and restores the content-hash table to an
// S3-compatible bucket, so a rebuilt database does not force a full
// re-aggregation of every provider.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/litcat/litrec/internal/logging"
	"github.com/litcat/litrec/internal/storage"
)

// ErrNoBucket is returned when no bucket is configured.
var ErrNoBucket = errors.New("s3 bucket required")

// FormatVersion is written into every snapshot.
const FormatVersion = 1

// ObjectStore is the subset of the S3 API used for snapshots. *s3.Client
// satisfies it.
type ObjectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// HashSource reads and writes stored content hashes. *storage.DB satisfies
// it.
type HashSource interface {
	ListHashes(ctx context.Context, provider string) ([]storage.Hash, error)
	RestoreHashes(ctx context.Context, hs []storage.Hash) error
}

// Config selects the bucket and endpoint.
type Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"` // optional, for MinIO and other S3-compatible stores
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
}

// NewS3Client builds an S3 client. Static credentials are used when given,
// otherwise the default AWS credential chain.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Snapshot is the serialized form of a hash backup.
type Snapshot struct {
	Version  int            `json:"version"`
	Provider string         `json:"provider,omitempty"`
	TakenAt  time.Time      `json:"taken_at"`
	Hashes   []storage.Hash `json:"hashes"`
}

// Store writes and reads snapshots in one bucket.
type Store struct {
	objects ObjectStore
	bucket  string
	prefix  string
	log     *zap.Logger
	now     func() time.Time
}

// New returns a Store.
func New(objects ObjectStore, cfg Config, log *zap.Logger) *Store {
	return &Store{
		objects: objects,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		log:     logging.OrNop(log),
		now:     time.Now,
	}
}

// Key returns the object key for a provider's snapshot; an empty provider
// covers all providers.
func (s *Store) Key(provider string) string {
	name := provider
	if name == "" {
		name = "all"
	}
	return path.Join(s.prefix, "content-hashes", name+".json")
}

// Backup uploads the provider's hashes and returns the key and hash count.
func (s *Store) Backup(ctx context.Context, src HashSource, provider string) (string, int, error) {
	hs, err := src.ListHashes(ctx, provider)
	if err != nil {
		return "", 0, err
	}
	if hs == nil {
		hs = []storage.Hash{}
	}
	data, err := json.Marshal(Snapshot{
		Version:  FormatVersion,
		Provider: provider,
		TakenAt:  s.now().UTC(),
		Hashes:   hs,
	})
	if err != nil {
		return "", 0, fmt.Errorf("encoding snapshot: %w", err)
	}

	key := s.Key(provider)
	_, err = s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", 0, fmt.Errorf("uploading %s: %w", key, err)
	}
	s.log.Info("content hashes backed up", zap.String("key", key), zap.Int("hashes", len(hs)))
	return key, len(hs), nil
}

// Restore downloads the provider's snapshot and writes its hashes back.
// Existing hashes for other records are kept.
func (s *Store) Restore(ctx context.Context, dst HashSource, provider string) (int, error) {
	key := s.Key(provider)
	out, err := s.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("downloading %s: %w", key, err)
	}
	defer out.Body.Close()

	var snap Snapshot
	if err := json.NewDecoder(out.Body).Decode(&snap); err != nil {
		return 0, fmt.Errorf("decoding %s: %w", key, err)
	}
	if snap.Version != FormatVersion {
		return 0, fmt.Errorf("snapshot %s has version %d, want %d", key, snap.Version, FormatVersion)
	}
	if err := dst.RestoreHashes(ctx, snap.Hashes); err != nil {
		return 0, err
	}
	s.log.Info("content hashes restored",
		zap.String("key", key),
		zap.Int("hashes", len(snap.Hashes)),
		zap.Time("taken_at", snap.TakenAt))
	return len(snap.Hashes), nil
}
