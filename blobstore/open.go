package blobstore

import (
	"fmt"
	"io"
	"net/url"
	"os"
)

// Open resolves a --storage URL (file:///path or s3://bucket) into a
// Store. The returned io.Closer releases any resources the backend
// holds (fsstore's key index); callers should defer its Close even
// when it is a no-op.
func Open(rawURL string) (Store, io.Closer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("blobstore: invalid storage URL %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "file":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		store, err := OpenFSStore(path)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil

	case "s3":
		cfg := S3Config{
			Endpoint:        os.Getenv("CAIRN_S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("CAIRN_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("CAIRN_S3_SECRET_ACCESS_KEY"),
			Bucket:          u.Host,
			UseSSL:          os.Getenv("CAIRN_S3_USE_SSL") != "false",
		}
		if cfg.Endpoint == "" {
			return nil, nil, fmt.Errorf("blobstore: s3:// storage requires CAIRN_S3_ENDPOINT")
		}
		store, err := OpenS3Store(cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, noopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("blobstore: unsupported storage scheme %q", u.Scheme)
	}
}

// noopCloser satisfies io.Closer for backends (s3store) that hold no
// closable resource of their own.
type noopCloser struct{}

func (noopCloser) Close() error { return nil }
