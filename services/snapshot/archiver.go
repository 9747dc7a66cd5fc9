package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"

	"pagewatch/pkg/errutil"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/minio/minio-go/v7"
)

// Archiver keeps the captured image and returns a reference stored on the
// run outcome.
type Archiver interface {
	Archive(ctx context.Context, taskID string, snap *Snapshot) (string, error)
}

// objectPutter is the part of *minio.Client the archiver uses.
type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type MinioArchiver struct {
	client objectPutter
	bucket string
	newID  func() string
}

func NewMinioArchiver(client objectPutter, bucket string) *MinioArchiver {
	return &MinioArchiver{
		client: client,
		bucket: bucket,
		newID:  func() string { return uuid.NewString() },
	}
}

func (a *MinioArchiver) Archive(ctx context.Context, taskID string, snap *Snapshot) (string, error) {
	key := ObjectKey(snap.URL, taskID, a.newID(), snap.ContentType)

	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(snap.Data), int64(len(snap.Data)), minio.PutObjectOptions{
		ContentType: snap.ContentType,
		UserMetadata: map[string]string{
			"task-id":    taskID,
			"source-url": snap.URL,
		},
	})
	if err != nil {
		return "", errutil.Persistence("archive snapshot", err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}

// ObjectKey lays snapshots out as snapshots/<host>/<task>/<id>.<ext>.
func ObjectKey(pageURL, taskID, id, contentType string) string {
	host := "unknown"
	if u, err := url.Parse(pageURL); err == nil && u.Hostname() != "" {
		host = slug.Make(u.Hostname())
	}

	ext := ".png"
	switch contentType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	}
	return path.Join("snapshots", host, taskID, id+ext)
}
