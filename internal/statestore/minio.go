package statestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Minio keeps snapshots as objects named "<organizationID>/<pageID>" in a
// single bucket. The acting user travels in object metadata.
type Minio struct {
	client *minio.Client
	bucket string
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func NewMinio(cfg MinioConfig) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Minio{client: client, bucket: cfg.Bucket}, nil
}

func (m *Minio) objectName(organizationID, pageID string) string {
	return organizationID + "/" + pageID
}

func (m *Minio) Load(ctx context.Context, organizationID, pageID string) ([]byte, error) {
	object, err := m.client.GetObject(ctx, m.bucket, m.objectName(organizationID, pageID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer object.Close()

	state, err := io.ReadAll(object)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("read object: %w", err)
	}
	return state, nil
}

func (m *Minio) Save(ctx context.Context, organizationID, pageID string, state []byte, actorID string) error {
	opts := minio.PutObjectOptions{ContentType: "application/octet-stream"}
	if actorID != "" {
		opts.UserMetadata = map[string]string{"updated-by": actorID}
	}
	_, err := m.client.PutObject(ctx, m.bucket, m.objectName(organizationID, pageID), bytes.NewReader(state), int64(len(state)), opts)
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}
