package minio

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/turtacn/SynthonScout/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

// MinIOAPI is the subset of *minio.Client the uploader needs.
type MinIOAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type MinIOConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	Region          string        `mapstructure:"region"`
	Bucket          string        `mapstructure:"bucket"`
	Prefix          string        `mapstructure:"prefix"`
	PartSize        uint64        `mapstructure:"part_size"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// ArchiveUploader copies finished result files into object storage.
type ArchiveUploader struct {
	client MinIOAPI
	config *MinIOConfig
	logger logging.Logger
}

// NewArchiveUploader connects to MinIO and makes sure the bucket exists.
func NewArchiveUploader(cfg *MinIOConfig, log logging.Logger) (*ArchiveUploader, error) {
	applyDefaults(cfg)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArchiveFailed, "failed to create minio client")
	}

	u := NewArchiveUploaderWithClient(client, cfg, log)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := u.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	u.logger.Info("MinIO client connected", logging.String("endpoint", cfg.Endpoint), logging.Bool("ssl", cfg.UseSSL))
	return u, nil
}

// NewArchiveUploaderWithClient wires an uploader to an existing client.
func NewArchiveUploaderWithClient(client MinIOAPI, cfg *MinIOConfig, log logging.Logger) *ArchiveUploader {
	applyDefaults(cfg)
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ArchiveUploader{client: client, config: cfg, logger: log.Named("minio")}
}

func applyDefaults(cfg *MinIOConfig) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.PartSize == 0 {
		cfg.PartSize = 16 * 1024 * 1024
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "synthonscout-results"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
}

func (u *ArchiveUploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.config.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeArchiveFailed, "failed to check bucket existence")
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.config.Bucket, minio.MakeBucketOptions{Region: u.config.Region}); err != nil {
		return errors.Wrap(err, errors.ErrCodeArchiveFailed, "failed to create bucket").WithDetail(u.config.Bucket)
	}
	u.logger.Info("Created bucket", logging.String("bucket", u.config.Bucket))
	return nil
}

// ObjectName returns the object key a local file is archived under.
func (u *ArchiveUploader) ObjectName(runID, localPath string) string {
	parts := []string{}
	if p := strings.Trim(u.config.Prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	if runID != "" {
		parts = append(parts, runID)
	}
	parts = append(parts, filepath.Base(localPath))
	return path.Join(parts...)
}

// Upload archives localPath and returns the object key.
func (u *ArchiveUploader) Upload(ctx context.Context, runID, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArchiveFailed, "failed to open result file").WithDetail(localPath)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArchiveFailed, "failed to stat result file").WithDetail(localPath)
	}

	object := u.ObjectName(runID, localPath)
	start := time.Now()
	_, err = u.client.PutObject(ctx, u.config.Bucket, object, f, info.Size(), minio.PutObjectOptions{
		ContentType:  "text/tab-separated-values",
		PartSize:     u.config.PartSize,
		UserMetadata: map[string]string{"run-id": runID},
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArchiveFailed, "failed to upload result file").WithDetail(object)
	}
	u.logger.Info("Result file archived",
		logging.String("bucket", u.config.Bucket),
		logging.String("object", object),
		logging.Int64("bytes", info.Size()),
		logging.Duration("duration", time.Since(start)))
	return object, nil
}
