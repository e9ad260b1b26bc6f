package services

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
)

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "orders.csv", sanitizeFilename("orders.csv"))
	assert.Equal(t, "orders.csv", sanitizeFilename("../../etc/orders.csv"))
	assert.Equal(t, "q1_report_final_.xlsx", sanitizeFilename("q1 report (final).xlsx"))
	assert.Equal(t, "upload", sanitizeFilename(""))
	assert.Equal(t, "upload", sanitizeFilename(".."))
}

func TestFileStoreSave(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, zap.NewNop())

	stored, err := s.Save("orders.csv", strings.NewReader("a,b\n1,2\n"), 1024)
	require.NoError(t, err)

	assert.Equal(t, int64(8), stored.Size)
	assert.Equal(t, dir, filepath.Dir(stored.Path))
	assert.Regexp(t, regexp.MustCompile(`^\d+-[0-9a-f]{8}-orders\.csv$`), stored.StoredName)

	data, err := os.ReadFile(stored.Path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))
}

func TestFileStoreSaveDistinctNamesForSameFile(t *testing.T) {
	s := NewFileStore(t.TempDir(), zap.NewNop())

	a, err := s.Save("orders.csv", strings.NewReader("x"), 0)
	require.NoError(t, err)
	b, err := s.Save("orders.csv", strings.NewReader("x"), 0)
	require.NoError(t, err)

	assert.NotEqual(t, a.StoredName, b.StoredName)
}

func TestFileStoreSaveRejectsOversize(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, zap.NewNop())

	_, err := s.Save("big.csv", strings.NewReader(strings.Repeat("x", 100)), 10)
	require.Error(t, err)
	assert.True(t, apperrors.HasTag(err, apperrors.TagConfigError))

	// The partial file is cleaned up.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStoreOpenAndRemove(t *testing.T) {
	s := NewFileStore(t.TempDir(), zap.NewNop())

	stored, err := s.Save("orders.csv", strings.NewReader("data"), 0)
	require.NoError(t, err)

	f, err := s.Open(stored.Path)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, s.Remove(stored.Path))
	_, err = s.Open(stored.Path)
	assert.Error(t, err)

	// Removing twice is not an error.
	assert.NoError(t, s.Remove(stored.Path))
}
