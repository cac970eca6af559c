package handoff

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemory(),
		"file":   NewFile(filepath.Join(t.TempDir(), "slot", "handoff.yaml")),
	}
}

func TestStoreSingleSlot(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Take()
			require.ErrorIs(t, err, ErrEmpty)

			first := Entry{URL: "blob:a", Type: "video/webm", Size: 10, Duration: 1.5}
			prev, err := s.Put(first)
			require.NoError(t, err)
			assert.Nil(t, prev)

			second := Entry{URL: "blob:b", Name: "other.webm", Type: "video/webm", Size: 20, Duration: 3}
			prev, err = s.Put(second)
			require.NoError(t, err)
			require.NotNil(t, prev)
			assert.Equal(t, "blob:a", prev.URL)
			assert.Equal(t, DefaultName, prev.Name)

			peeked, err := s.Peek()
			require.NoError(t, err)
			assert.Equal(t, second, peeked)

			got, err := s.Take()
			require.NoError(t, err)
			assert.Equal(t, second, got)

			_, err = s.Take()
			assert.ErrorIs(t, err, ErrEmpty)
		})
	}
}

func TestStoreClear(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Clear())
			_, err := s.Put(Entry{URL: "blob:a"})
			require.NoError(t, err)
			require.NoError(t, s.Clear())
			_, err = s.Peek()
			assert.ErrorIs(t, err, ErrEmpty)
		})
	}
}

func TestFileStoreSharedBetweenHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handoff.yaml")
	writer := NewFile(path)
	reader := NewFile(path)

	_, err := writer.Put(Entry{URL: "file:///tmp/x.webm", Type: "video/webm", Size: 3, Duration: 0.5})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{"url:", "name:", "type:", "size:", "duration:"} {
		assert.Contains(t, string(raw), key)
	}

	e, err := reader.Take()
	require.NoError(t, err)
	assert.Equal(t, DefaultName, e.Name)
	_, err = writer.Take()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestSpoolRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ref, err := Spool(dir, "", bytes.NewReader([]byte("webm-bytes")))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "file://"))

	p, err := SpoolPath(ref)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p, DefaultName))

	f, err := Open(ref)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Equal(t, "webm-bytes", string(data))

	require.NoError(t, Release(ref))
	require.NoError(t, Release(ref))
	_, err = os.Stat(p)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSpoolPathRejectsOtherSchemes(t *testing.T) {
	_, err := SpoolPath("blob:1234")
	assert.ErrorIs(t, err, ErrNotSpooled)
	assert.ErrorIs(t, Release("https://example.com/x"), ErrNotSpooled)
}
