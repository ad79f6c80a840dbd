package artifacts

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/harunnryd/roundtable/pkg/speech"
)

type MinioConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	Bucket          string        `mapstructure:"bucket"`
	Region          string        `mapstructure:"region"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	PublicURL       string        `mapstructure:"public_url"`
	Prefix          string        `mapstructure:"prefix"`
	Expiry          time.Duration `mapstructure:"expiry"`
}

// Minio uploads each utterance's audio to a bucket so remote viewers can
// stream it without reaching the local hub.
type Minio struct {
	client *minio.Client
	cfg    MinioConfig
}

func NewMinio(ctx context.Context, cfg MinioConfig) (*Minio, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "msg"
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = time.Hour
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return &Minio{client: client, cfg: cfg}, nil
}

func (m *Minio) Publish(ctx context.Context, audio speech.Audio) (string, error) {
	f, err := os.Open(audio.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	object := path.Join(m.cfg.Prefix, filepath.Base(audio.Path))
	contentType := audio.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = m.client.PutObject(ctx, m.cfg.Bucket, object, f, info.Size(), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", object, err)
	}
	return m.url(ctx, object)
}

func (m *Minio) url(ctx context.Context, object string) (string, error) {
	if m.cfg.PublicURL != "" {
		return strings.TrimRight(m.cfg.PublicURL, "/") + "/" + m.cfg.Bucket + "/" + object, nil
	}
	u, err := m.client.PresignedGetObject(ctx, m.cfg.Bucket, object, m.cfg.Expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u.String(), nil
}
