// Package storage archives exports and revision snapshots in MinIO.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sony/gobreaker"

	"github.com/drilldocs/drilldocs/internal/config"
	"github.com/drilldocs/drilldocs/internal/document"
	"github.com/drilldocs/drilldocs/pkg/breaker"
)

// ErrDisabled is returned by a nil *Archive.
var ErrDisabled = errors.New("archive not configured")

// objectStore is the part of *minio.Client the archive uses.
type objectStore interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (*minio.Object, error)
	PresignedGetObject(ctx context.Context, bucket, key string, expires time.Duration, params url.Values) (*url.URL, error)
}

// Archive is a thin wrapper around the minio client. A nil *Archive is a
// valid, disabled archive.
type Archive struct {
	client objectStore
	bucket string
	cb     *gobreaker.CircuitBreaker
	now    func() time.Time
}

// NewArchive connects to MinIO and ensures the bucket exists. It returns nil
// without error when no endpoint is configured.
func NewArchive(ctx context.Context, cfg config.MinIOConfig) (*Archive, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		exist, xerr := mc.BucketExists(ctx, cfg.Bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return newArchive(mc, cfg.Bucket), nil
}

func newArchive(client objectStore, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket, cb: breaker.New(breaker.DefaultConfig("minio-archive")), now: time.Now}
}

// ExportKey is the object key of one export of a document.
func ExportKey(documentID, ext string, at time.Time) string {
	return path.Join("exports", documentID, at.UTC().Format("20060102T150405Z")+"."+ext)
}

// RevisionKey is the object key of a revision snapshot.
func RevisionKey(rev document.Revision) string {
	return path.Join("revisions", rev.DocumentID, fmt.Sprintf("v%04d-%s.json", rev.Version, rev.ID))
}

func (a *Archive) put(ctx context.Context, key string, data []byte, contentType string) error {
	if a == nil {
		return ErrDisabled
	}
	_, err := a.cb.Execute(func() (interface{}, error) {
		return a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	return nil
}

// StoreExport uploads an export and returns its key.
func (a *Archive) StoreExport(ctx context.Context, documentID, ext, contentType string, data []byte) (string, error) {
	if a == nil {
		return "", ErrDisabled
	}
	key := ExportKey(documentID, ext, a.now())
	return key, a.put(ctx, key, data, contentType)
}

// StoreRevision uploads a revision snapshot as JSON.
func (a *Archive) StoreRevision(ctx context.Context, rev document.Revision) (string, error) {
	b, err := json.Marshal(rev)
	if err != nil {
		return "", fmt.Errorf("encode revision: %w", err)
	}
	key := RevisionKey(rev)
	return key, a.put(ctx, key, b, "application/json")
}

// Open returns a reader for a stored object.
func (a *Archive) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if a == nil {
		return nil, ErrDisabled
	}
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

// PresignedURL returns a GET URL valid for expires.
func (a *Archive) PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if a == nil {
		return "", ErrDisabled
	}
	u, err := a.client.PresignedGetObject(ctx, a.bucket, key, expires, make(url.Values))
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
