package handoff

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FileScheme prefixes references to spooled recordings.
const FileScheme = "file"

var ErrNotSpooled = errors.New("handoff: reference is not a spooled file")

// Spool copies r into a new file under dir and returns a file:// reference
// to it. In-process playback references do not survive the process, so
// entries written to a File store point at spooled copies.
func Spool(dir, name string, r io.Reader) (string, error) {
	if name == "" {
		name = DefaultName
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("handoff: create spool dir: %w", err)
	}
	abs, err := filepath.Abs(filepath.Join(dir, uuid.NewString()+"-"+filepath.Base(name)))
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(abs, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("handoff: create spool file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(abs)
		return "", fmt.Errorf("handoff: write spool file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(abs)
		return "", fmt.Errorf("handoff: close spool file: %w", err)
	}
	return (&url.URL{Scheme: FileScheme, Path: filepath.ToSlash(abs)}).String(), nil
}

// SpoolPath returns the local path behind a file:// reference.
func SpoolPath(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != FileScheme || u.Path == "" {
		return "", fmt.Errorf("%w: %q", ErrNotSpooled, ref)
	}
	return filepath.FromSlash(u.Path), nil
}

// Open opens a spooled recording for reading.
func Open(ref string) (*os.File, error) {
	p, err := SpoolPath(ref)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Release deletes a spooled recording. Releasing a missing file is a no-op.
func Release(ref string) error {
	p, err := SpoolPath(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("handoff: release %s: %w", p, err)
	}
	return nil
}
