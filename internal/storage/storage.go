package storage

import (
	"bytes"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"

	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/config"
)

// Client stores and serves the mirrored image files. Keys are
// content-derived ("<hash>_<resolution>.jpg"), so a key never changes
// meaning and caching aggressively is safe.
type Client struct {
	backend StorageProvider
	bucket  string
}

func New(cfg *config.Config) *Client {
	var backend StorageProvider

	if cfg.Storage.Provider == "local" {
		backend = NewLocalProvider(cfg.Storage.LocalStorage)
	} else {
		// S3-compatible backends (AWS, B2) share one provider
		s3Config := &aws.Config{
			Credentials:      credentials.NewStaticCredentials(cfg.Storage.KeyID, cfg.Storage.AppKey, ""),
			Endpoint:         aws.String(cfg.Storage.Endpoint),
			Region:           aws.String(cfg.Storage.Region),
			S3ForcePathStyle: aws.Bool(true),
		}
		sess := session.Must(session.NewSession(s3Config))
		backend = NewS3Provider(sess)
	}

	return &Client{
		backend: backend,
		bucket:  cfg.Images.Bucket,
	}
}

// NewWithProvider wires an explicit backend (used by tests).
func NewWithProvider(backend StorageProvider, bucket string) *Client {
	return &Client{backend: backend, bucket: bucket}
}

func (c *Client) PutImage(key string, data []byte, contentType string) error {
	return c.backend.Put(c.bucket, key, bytes.NewReader(data), contentType, "public, max-age=31536000")
}

func (c *Client) GetImage(key string) (io.ReadCloser, int64, error) {
	obj, err := c.backend.Get(c.bucket, key)
	if err != nil {
		return nil, 0, err
	}
	return obj.Body, obj.ContentLength, nil
}

func (c *Client) DeleteImage(key string) error {
	return c.backend.Delete(c.bucket, key)
}

func (c *Client) ListImages() ([]string, error) {
	return c.backend.List(c.bucket, "")
}
