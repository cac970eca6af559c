// Package blob holds immutable recording bytes and the local references
// used to play them back.
package blob

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Scheme prefixes every reference created by a Registry.
const Scheme = "blob:"

// Blob is an immutable byte sequence with a media type.
type Blob struct {
	data []byte
	typ  string
}

// New concatenates parts, in order, into a new blob.
func New(parts [][]byte, mediaType string) *Blob {
	return &Blob{data: bytes.Join(parts, nil), typ: mediaType}
}

func (b *Blob) Size() int64  { return int64(len(b.data)) }
func (b *Blob) Type() string { return b.typ }

// Bytes returns a copy of the contents.
func (b *Blob) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Reader returns a reader over the contents.
func (b *Blob) Reader() io.Reader {
	return bytes.NewReader(b.data)
}

// Registry maps references to blobs until they are revoked.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Blob
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Blob)}
}

// CreateURL registers b and returns a new reference to it.
func (r *Registry) CreateURL(b *Blob) string {
	ref := Scheme + uuid.NewString()
	r.mu.Lock()
	r.entries[ref] = b
	r.mu.Unlock()
	return ref
}

// Resolve returns the blob behind ref, if it has not been revoked.
func (r *Registry) Resolve(ref string) (*Blob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.entries[ref]
	return b, ok
}

// Revoke drops ref. It reports whether ref was live; revoking twice is a
// no-op.
func (r *Registry) Revoke(ref string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[ref]; !ok {
		return false
	}
	delete(r.entries, ref)
	return true
}

// Len returns the number of live references.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IsRef reports whether s looks like a reference from a Registry.
func IsRef(s string) bool {
	return strings.HasPrefix(s, Scheme)
}
