package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
)

// StoredFile describes a file persisted by the store.
type StoredFile struct {
	StoredName string
	Path       string
	Size       int64
}

// FileStore persists uploaded files under a single directory. Stored names
// follow <epochMillis>-<nonce>-<sanitisedOriginal> so concurrent uploads of
// the same filename never collide.
type FileStore interface {
	Save(originalName string, r io.Reader, maxBytes int64) (*StoredFile, error)
	Open(path string) (io.ReadCloser, error)
	Remove(path string) error
}

type fileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore creates a file store rooted at dir. The directory is created
// on first save.
func NewFileStore(dir string, logger *zap.Logger) FileStore {
	return &fileStore{dir: dir, logger: logger.Named("filestore")}
}

var _ FileStore = (*fileStore)(nil)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeFilename strips path components and replaces unsafe characters, so
// stored names are shell and URL safe.
func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	safe := unsafeFilenameChars.ReplaceAllString(base, "_")
	if safe == "" || safe == "." || safe == ".." {
		safe = "upload"
	}
	return safe
}

func (s *fileStore) Save(originalName string, r io.Reader, maxBytes int64) (*StoredFile, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	nonce := make([]byte, 4)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate filename nonce: %w", err)
	}

	storedName := fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), hex.EncodeToString(nonce), sanitizeFilename(originalName))
	path := filepath.Join(s.dir, storedName)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}

	// Copy one byte past the cap so an oversized stream is detected rather
	// than silently truncated.
	limit := r
	if maxBytes > 0 {
		limit = io.LimitReader(r, maxBytes+1)
	}

	size, err := io.Copy(f, limit)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write upload file: %w", err)
	}
	if maxBytes > 0 && size > maxBytes {
		os.Remove(path)
		return nil, apperrors.ConfigError("file %q exceeds the %d byte limit", originalName, maxBytes)
	}

	s.logger.Debug("stored upload",
		zap.String("stored_name", storedName),
		zap.Int64("size_bytes", size))

	return &StoredFile{StoredName: storedName, Path: path, Size: size}, nil
}

func (s *fileStore) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	return f, nil
}

func (s *fileStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove upload file: %w", err)
	}
	return nil
}
