package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/metrics"
	"github.com/dalemusser/waffle/pantry/storage"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
)

// ErrBadToken is returned by Local.Open for tokens that fail verification
// or have expired.
var ErrBadToken = errors.New("download link is invalid or has expired")

const tokenName = "blob"

// LocalConfig configures a disk-backed store.
type LocalConfig struct {
	BasePath string // directory that holds the blobs
	// DownloadURL is the absolute or root-relative URL of the signed
	// download endpoint, e.g. "/blobs" or "https://drive.example.com/blobs".
	DownloadURL string
	// SigningKey authenticates download tokens (≥32 bytes recommended).
	SigningKey []byte
}

// Local stores blobs under a directory through waffle's storage layer and
// hands out HMAC-signed, expiring download tokens.
type Local struct {
	files       storage.Store
	downloadURL string
	codec       *securecookie.SecureCookie
	logger      *zap.Logger
}

type downloadToken struct {
	Name    string `json:"n"`
	Expires int64  `json:"e"`
}

// NewLocal creates a Local backend rooted at cfg.BasePath.
func NewLocal(cfg LocalConfig, logger *zap.Logger) (*Local, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("local blob store requires a signing key")
	}
	files, err := storage.NewLocal(storage.LocalConfig{
		BasePath: cfg.BasePath,
		BaseURL:  cfg.DownloadURL,
	})
	if err != nil {
		return nil, fmt.Errorf("init local storage: %w", err)
	}

	codec := securecookie.New(cfg.SigningKey, nil)
	codec.SetSerializer(securecookie.JSONEncoder{})
	// Expiry is carried in the token itself; disable the codec's own age
	// check so per-URL TTLs longer than its default still work.
	codec.MaxAge(0)

	return &Local{
		files:       files,
		downloadURL: strings.TrimRight(cfg.DownloadURL, "/"),
		codec:       codec,
		logger:      logger,
	}, nil
}

// Upload implements Store.
func (l *Local) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) (Blob, error) {
	start := time.Now()
	if err := l.files.Put(ctx, name, r, &storage.PutOptions{ContentType: contentType}); err != nil {
		metrics.RecordBlobOperation("local", "put", time.Since(start), false)
		return Blob{}, fmt.Errorf("put %s: %w", name, err)
	}
	metrics.RecordBlobOperation("local", "put", time.Since(start), true)
	return Blob{ID: name, Name: name}, nil
}

// Delete implements Store.
func (l *Local) Delete(ctx context.Context, b Blob) error {
	start := time.Now()
	if err := l.files.Delete(ctx, b.Name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		metrics.RecordBlobOperation("local", "delete", time.Since(start), false)
		return fmt.Errorf("delete %s: %w", b.Name, err)
	}
	metrics.RecordBlobOperation("local", "delete", time.Since(start), true)
	return nil
}

// SignedURL implements Store. The URL carries a signed token naming the blob
// and its expiry; Open verifies it.
func (l *Local) SignedURL(_ context.Context, b Blob, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	tok, err := l.codec.Encode(tokenName, downloadToken{
		Name:    b.Name,
		Expires: time.Now().Add(ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("sign download token: %w", err)
	}
	return l.downloadURL + "?t=" + url.QueryEscape(tok), nil
}

// Open verifies a download token and returns the blob's bytes and name.
func (l *Local) Open(ctx context.Context, token string) (io.ReadCloser, string, error) {
	var dt downloadToken
	if err := l.codec.Decode(tokenName, token, &dt); err != nil {
		return nil, "", ErrBadToken
	}
	if dt.Name == "" || time.Now().Unix() > dt.Expires {
		return nil, "", ErrBadToken
	}

	start := time.Now()
	rc, err := l.files.Get(ctx, dt.Name)
	if err != nil {
		metrics.RecordBlobOperation("local", "get", time.Since(start), false)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("get %s: %w", dt.Name, err)
	}
	metrics.RecordBlobOperation("local", "get", time.Since(start), true)
	return rc, dt.Name, nil
}
