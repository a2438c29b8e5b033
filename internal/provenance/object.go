package provenance

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"gopkg.in/yaml.v3"
)

// ObjectConfig holds the connection settings for an S3-compatible store.
type ObjectConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ObjectSink archives flow files in object storage under
// runs/<profile_id>/<run_id>.flow.yaml.
type ObjectSink struct {
	client *minio.Client
	bucket string
	region string

	initOnce sync.Once
	initErr  error
}

func NewObjectSink(cfg ObjectConfig) (*ObjectSink, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("object sink: endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("object sink: access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("object sink: bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("object sink: init client: %w", err)
	}
	return &ObjectSink{client: client, bucket: bucket, region: region}, nil
}

func (s *ObjectSink) Name() string { return "object" }

func (s *ObjectSink) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func (s *ObjectSink) Persist(ctx context.Context, rec *Record) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("object sink: ensure bucket: %w", err)
	}
	raw, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("object sink: marshal: %w", err)
	}
	key := fmt.Sprintf("runs/%s/%s.flow.yaml", rec.ProfileID, rec.RunID)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "application/yaml",
	})
	if err != nil {
		return fmt.Errorf("object sink: %w", err)
	}
	return nil
}
