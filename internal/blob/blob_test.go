package blob

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConcatenatesInOrder(t *testing.T) {
	b := New([][]byte{[]byte("ab"), nil, []byte("c"), []byte("de")}, "video/webm")

	assert.Equal(t, []byte("abcde"), b.Bytes())
	assert.Equal(t, int64(5), b.Size())
	assert.Equal(t, "video/webm", b.Type())

	got, err := io.ReadAll(b.Reader())
	require.NoError(t, err)
	assert.Equal(t, []byte("abcde"), got)
}

func TestBytesReturnsCopy(t *testing.T) {
	b := New([][]byte{[]byte("xyz")}, "")
	out := b.Bytes()
	out[0] = 'Q'
	assert.Equal(t, []byte("xyz"), b.Bytes())
}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	b := New([][]byte{[]byte("data")}, "video/webm")

	ref := r.CreateURL(b)
	assert.True(t, IsRef(ref))
	assert.Equal(t, 1, r.Len())

	got, ok := r.Resolve(ref)
	require.True(t, ok)
	assert.Same(t, b, got)

	other := r.CreateURL(b)
	assert.NotEqual(t, ref, other)

	assert.True(t, r.Revoke(ref))
	assert.False(t, r.Revoke(ref))
	_, ok = r.Resolve(ref)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}
