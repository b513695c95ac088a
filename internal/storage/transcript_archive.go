package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"meetassist-backend/pkg/logger"
	"meetassist-backend/pkg/resilience"

	"go.uber.org/zap"
)

// TranscriptArchive keeps a durable copy of raw transcripts in object storage.
// The provider's transcript URL eventually expires; the archived object is the
// long-term record.
type TranscriptArchive struct {
	client   *minio.Client
	bucket   string
	upstream *resilience.Upstream
}

// ArchiveConfig contains object storage connection settings
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewTranscriptArchive creates an archive backed by a MinIO bucket
func NewTranscriptArchive(cfg ArchiveConfig) (*TranscriptArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	return &TranscriptArchive{
		client:   client,
		bucket:   cfg.Bucket,
		upstream: resilience.NewUpstream("transcript_archive"),
	}, nil
}

// EnsureBucket creates the archive bucket if it does not exist yet
func (a *TranscriptArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check archive bucket: %w", err)
	}
	if exists {
		return nil
	}

	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create archive bucket: %w", err)
	}

	logger.Info("Archive bucket created", zap.String("bucket", a.bucket))
	return nil
}

// Archive stores the raw transcript bytes for a meeting and returns the
// object location.
func (a *TranscriptArchive) Archive(ctx context.Context, meetingID uuid.UUID, body []byte) (string, error) {
	objectName := fmt.Sprintf("meetings/%s/transcript.jsonl", meetingID)

	err := a.upstream.Execute(ctx, "put_object", func(ctx context.Context) error {
		_, err := a.client.PutObject(ctx, a.bucket, objectName,
			bytes.NewReader(body), int64(len(body)),
			minio.PutObjectOptions{ContentType: "application/x-ndjson"})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive transcript: %w", err)
	}

	location := fmt.Sprintf("s3://%s/%s", a.bucket, objectName)
	logger.Info("Transcript archived",
		zap.String("meeting_id", meetingID.String()),
		zap.String("location", location))

	return location, nil
}

// Fetch reads an archived transcript back
func (a *TranscriptArchive) Fetch(ctx context.Context, meetingID uuid.UUID) ([]byte, error) {
	objectName := fmt.Sprintf("meetings/%s/transcript.jsonl", meetingID)

	var data []byte
	err := a.upstream.Execute(ctx, "get_object", func(ctx context.Context) error {
		obj, err := a.client.GetObject(ctx, a.bucket, objectName, minio.GetObjectOptions{})
		if err != nil {
			return err
		}
		defer obj.Close()

		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(obj); err != nil {
			return err
		}
		data = buf.Bytes()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch archived transcript: %w", err)
	}

	return data, nil
}
