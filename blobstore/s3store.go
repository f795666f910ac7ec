package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cairnbackup/cairn/errs"
)

// S3Store is a Store backed by an S3-compatible object store via
// minio-go.
//
// Grounded on other_examples/manifests/restic-restic/go.mod, which
// pulls in the same client for its own S3 backend.
type S3Store struct {
	client *minio.Client
	bucket string
}

// S3Config names the connection parameters for OpenS3Store.
type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
}

// OpenS3Store creates a Store against the given bucket, which must
// already exist.
func OpenS3Store(cfg S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: creating client: %w", err)
	}
	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3store: stat %s: %w", key, err)
	}
	return true, nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok, err := s.TryGet(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrItemNotFound
	}
	return data, nil
}

func (s *S3Store) TryGet(ctx context.Context, key string) ([]byte, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("s3store: get %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("s3store: reading %s: %w", key, err)
	}
	return data, true, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("s3store: put %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("s3store: delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) DeleteMany(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += MaxBatchDelete {
		end := start + MaxBatchDelete
		if end > len(keys) {
			end = len(keys)
		}
		objectsCh := make(chan minio.ObjectInfo, end-start)
		for _, k := range keys[start:end] {
			objectsCh <- minio.ObjectInfo{Key: k}
		}
		close(objectsCh)
		for result := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
			if result.Err != nil {
				return fmt.Errorf("s3store: batch delete %s: %w", result.ObjectName, result.Err)
			}
		}
	}
	return nil
}

func (s *S3Store) Keys(ctx context.Context, prefix string) (KeyIterator, error) {
	ctx, cancel := context.WithCancel(ctx)
	objCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	return &s3KeyIterator{ch: objCh, cancel: cancel}, nil
}

type s3KeyIterator struct {
	ch     <-chan minio.ObjectInfo
	cancel context.CancelFunc
	cur    minio.ObjectInfo
	err    error
}

func (it *s3KeyIterator) Next(ctx context.Context) bool {
	obj, ok := <-it.ch
	if !ok {
		it.cancel()
		return false
	}
	if obj.Err != nil {
		it.err = obj.Err
		it.cancel()
		return false
	}
	it.cur = obj
	return true
}

func (it *s3KeyIterator) Key() string { return it.cur.Key }
func (it *s3KeyIterator) Err() error  { return it.err }

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}
