// Package imagestore downloads a record's primary image, checks that the
// payload really is an image and writes it to a blob store as {identity}.{ext}.
package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register GIF header decoding
	_ "image/jpeg" // register JPEG header decoding
	_ "image/png"  // register PNG header decoding
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/JakeFAU/pharma-listing-crawler/internal/hash/sha256"
	"github.com/JakeFAU/pharma-listing-crawler/internal/medicine"
	"github.com/JakeFAU/pharma-listing-crawler/internal/metrics"
)

// Image acquisition results reported to metrics.
const (
	ResultStored   = "stored"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

const fallbackExtension = "jpg"

// keptExtensions are the detected formats that keep their own extension.
var keptExtensions = map[string]string{
	"jpeg": "jpeg",
	"png":  "png",
	"gif":  "gif",
	"bmp":  "bmp",
}

// decodable formats must pass image.DecodeConfig before they are written.
var decodable = map[string]bool{"jpeg": true, "png": true, "gif": true}

// BlobStore persists image bytes under a name.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

// Hasher digests stored payloads for the audit log.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Store implements medicine.ImageStore on top of a Fetcher and a BlobStore.
type Store struct {
	fetcher medicine.Fetcher
	blobs   BlobStore
	hasher  Hasher
	logger  *zap.Logger
}

// New wires an image store.
func New(fetcher medicine.Fetcher, blobs BlobStore, logger *zap.Logger) (*Store, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{fetcher: fetcher, blobs: blobs, hasher: sha256.New(), logger: logger}, nil
}

// Acquire fetches imageURL and stores it for identity. It returns the stored
// filename, or false when the image could not be fetched, validated or written.
func (s *Store) Acquire(ctx context.Context, imageURL string, identity int64) (string, bool) {
	logger := s.logger.With(zap.String("url", imageURL), zap.Int64("identity", identity))
	if strings.TrimSpace(imageURL) == "" {
		return "", false
	}

	outcome := s.fetcher.Fetch(ctx, imageURL)
	if !outcome.Success {
		logger.Warn("image download failed", zap.Int("attempts", outcome.AttemptsUsed))
		metrics.ObserveImage(ResultFailed)
		return "", false
	}

	contentType, ext, err := Inspect(outcome.Content)
	if err != nil {
		logger.Warn("image rejected", zap.Error(err))
		metrics.ObserveImage(ResultRejected)
		return "", false
	}

	filename := fmt.Sprintf("%d.%s", identity, ext)
	uri, err := s.blobs.PutObject(ctx, filename, contentType, bytes.NewReader(outcome.Content))
	if err != nil {
		logger.Error("image write failed", zap.String("filename", filename), zap.Error(err))
		metrics.ObserveImage(ResultFailed)
		return "", false
	}
	digest, _ := s.hasher.Hash(outcome.Content)
	logger.Info("image stored",
		zap.String("filename", filename),
		zap.String("uri", uri),
		zap.String("sha256", digest),
	)
	metrics.ObserveImage(ResultStored)
	return filename, true
}

// Inspect sniffs content and returns its MIME type and the file extension to
// store it under. Content that is not an image, or whose header does not
// decode, is rejected.
func Inspect(content []byte) (string, string, error) {
	if len(content) == 0 {
		return "", "", fmt.Errorf("empty payload")
	}
	mt := mimetype.Detect(content)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", "", fmt.Errorf("payload is %s, not an image", mt.String())
	}

	format := strings.TrimPrefix(mt.String(), "image/")
	if decodable[format] {
		_, decoded, err := image.DecodeConfig(bytes.NewReader(content))
		if err != nil {
			return "", "", fmt.Errorf("decode %s header: %w", format, err)
		}
		format = decoded
	}

	ext, ok := keptExtensions[format]
	if !ok {
		ext = fallbackExtension
	}
	return mt.String(), ext, nil
}
