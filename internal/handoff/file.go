package handoff

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// File is a Store backed by a YAML file, shared between processes. Every
// operation holds an exclusive lock on path + ".lock".
type File struct {
	path string
	lock *flock.Flock
}

// NewFile returns a store at path. The directory is created on first Put.
func NewFile(path string) *File {
	return &File{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the slot file location.
func (f *File) Path() string { return f.path }

func (f *File) Put(e Entry) (*Entry, error) {
	if e.Name == "" {
		e.Name = DefaultName
	}
	var prev *Entry
	err := f.locked(func() error {
		old, err := f.read()
		switch {
		case err == nil:
			prev = &old
		case !errors.Is(err, ErrEmpty):
			return err
		}
		return f.write(e)
	})
	return prev, err
}

func (f *File) Take() (Entry, error) {
	var e Entry
	err := f.locked(func() error {
		var err error
		if e, err = f.read(); err != nil {
			return err
		}
		return f.remove()
	})
	return e, err
}

func (f *File) Peek() (Entry, error) {
	var e Entry
	err := f.locked(func() error {
		var err error
		e, err = f.read()
		return err
	})
	return e, err
}

func (f *File) Clear() error {
	return f.locked(f.remove)
}

func (f *File) locked(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("handoff: create dir: %w", err)
	}
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("handoff: lock slot: %w", err)
	}
	defer func() { _ = f.lock.Unlock() }()
	return fn()
}

func (f *File) read() (Entry, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, ErrEmpty
	}
	if err != nil {
		return Entry{}, fmt.Errorf("handoff: read slot: %w", err)
	}
	var e Entry
	if err := yaml.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("handoff: parse slot: %w", err)
	}
	if e.URL == "" {
		return Entry{}, ErrEmpty
	}
	return e, nil
}

func (f *File) write(e Entry) error {
	data, err := yaml.Marshal(&e)
	if err != nil {
		return fmt.Errorf("handoff: encode entry: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("handoff: write slot: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("handoff: replace slot: %w", err)
	}
	return nil
}

func (f *File) remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("handoff: clear slot: %w", err)
	}
	return nil
}
