package snapshot

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"pagewatch/pkg/errutil"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func TestHTTPCapturer_Capture(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "https://example.com/pricing", r.URL.Query().Get("url"))
		w.Header().Set("Content-Type", "image/png; charset=binary")
		_, _ = w.Write(pngHeader)
	}))
	defer server.Close()

	capturer := NewHTTPCapturer(server.URL+"/shot", 5*time.Second)
	snap, err := capturer.Capture(context.Background(), "https://example.com/pricing")
	require.NoError(t, err)
	require.Equal(t, "image/png", snap.ContentType)
	require.Equal(t, pngHeader, snap.Data)
	require.False(t, snap.TakenAt.IsZero())
}

func TestHTTPCapturer_DetectsContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(pngHeader)
	}))
	defer server.Close()

	snap, err := NewHTTPCapturer(server.URL, 5*time.Second).Capture(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.Equal(t, "image/png", snap.ContentType)
}

func TestHTTPCapturer_Failures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewHTTPCapturer(server.URL, 5*time.Second).Capture(context.Background(), "https://example.com")
	require.True(t, errutil.Is(err, errutil.KindCapture))
	require.Equal(t, int32(2), calls.Load(), "one retry on 5xx")

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer empty.Close()

	_, err = NewHTTPCapturer(empty.URL, 5*time.Second).Capture(context.Background(), "https://example.com")
	require.True(t, errutil.Is(err, errutil.KindCapture))

	_, err = NewHTTPCapturer("", time.Second).Capture(context.Background(), "https://example.com")
	require.ErrorIs(t, err, ErrEndpointNotConfigured)
}

type fakePutter struct {
	bucket, key string
	body        []byte
	opts        minio.PutObjectOptions
	err         error
}

func (f *fakePutter) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	f.bucket, f.key, f.opts = bucketName, objectName, opts
	f.body, _ = io.ReadAll(reader)
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: objectSize}, nil
}

func TestMinioArchiver_Archive(t *testing.T) {
	putter := &fakePutter{}
	archiver := NewMinioArchiver(putter, "pagewatch-snapshots")
	archiver.newID = func() string { return "b3c1" }

	ref, err := archiver.Archive(context.Background(), "42", &Snapshot{
		URL:         "https://Shop.Example.com/deals?x=1",
		ContentType: "image/jpeg",
		Data:        []byte("jpeg"),
	})
	require.NoError(t, err)
	require.Equal(t, "s3://pagewatch-snapshots/snapshots/shop-example-com/42/b3c1.jpg", ref)
	require.Equal(t, "snapshots/shop-example-com/42/b3c1.jpg", putter.key)
	require.Equal(t, []byte("jpeg"), putter.body)
	require.Equal(t, "image/jpeg", putter.opts.ContentType)
	require.Equal(t, "42", putter.opts.UserMetadata["task-id"])
}

func TestMinioArchiver_Error(t *testing.T) {
	archiver := NewMinioArchiver(&fakePutter{err: errors.New("connection refused")}, "b")
	_, err := archiver.Archive(context.Background(), "1", &Snapshot{URL: "https://example.com", Data: []byte("x")})
	require.True(t, errutil.Is(err, errutil.KindPersistence))
}

func TestObjectKey(t *testing.T) {
	require.Equal(t, "snapshots/unknown/7/id.png", ObjectKey("::bad", "7", "id", ""))
	require.Equal(t, "snapshots/example-com/7/id.webp", ObjectKey("https://example.com", "7", "id", "image/webp"))
}
