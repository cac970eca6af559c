// Package handoff passes a finished recording to the upload side through a
// single slot. The slot holds at most one entry, and each entry is read at
// most once.
package handoff

import (
	"errors"
	"sync"
)

// DefaultName is the file name given to every handed-off recording.
const DefaultName = "screen-recording.webm"

// ErrEmpty is returned when the slot holds no entry.
var ErrEmpty = errors.New("handoff: slot is empty")

// Entry describes a recording waiting for upload.
type Entry struct {
	URL      string  `yaml:"url" json:"url"`
	Name     string  `yaml:"name" json:"name"`
	Type     string  `yaml:"type" json:"type"`
	Size     int64   `yaml:"size" json:"size"`
	Duration float64 `yaml:"duration" json:"duration"` // seconds
}

// Store is a single-slot, single-consumer store.
type Store interface {
	// Put replaces the slot's entry. The displaced entry, if any, is returned
	// so its reference can be released.
	Put(e Entry) (*Entry, error)
	// Take returns the entry and empties the slot.
	Take() (Entry, error)
	// Peek returns the entry without consuming it.
	Peek() (Entry, error)
	// Clear empties the slot.
	Clear() error
}

// Memory is an in-process Store.
type Memory struct {
	mu    sync.Mutex
	entry *Entry
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Put(e Entry) (*Entry, error) {
	if e.Name == "" {
		e.Name = DefaultName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.entry
	m.entry = &e
	return prev, nil
}

func (m *Memory) Take() (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entry == nil {
		return Entry{}, ErrEmpty
	}
	e := *m.entry
	m.entry = nil
	return e, nil
}

func (m *Memory) Peek() (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entry == nil {
		return Entry{}, ErrEmpty
	}
	return *m.entry, nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	m.entry = nil
	m.mu.Unlock()
	return nil
}
