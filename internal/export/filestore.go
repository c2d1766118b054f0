package export

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore is where downloaded activity files land. The production store is
// a directory; tests substitute their own.
type FileStore interface {
	Exists(name string) bool
	Write(name string, data []byte) error
	Chtimes(name string, t time.Time) error
	// Unzip extracts an archive into the store and removes it. Zero-byte
	// archives are skipped silently.
	Unzip(name string) error
	Path(name string) string
}

// DirStore stores files flat in one output directory.
type DirStore struct {
	root string
}

// NewDirStore creates the directory if needed.
func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &DirStore{root: root}, nil
}

func (s *DirStore) Path(name string) string {
	return filepath.Join(s.root, name)
}

func (s *DirStore) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

func (s *DirStore) Write(name string, data []byte) error {
	if err := os.WriteFile(s.Path(name), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func (s *DirStore) Chtimes(name string, t time.Time) error {
	return os.Chtimes(s.Path(name), t, t)
}

func (s *DirStore) Unzip(name string) error {
	path := s.Path(name)
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", name, err)
	}
	for _, f := range r.File {
		if err := s.extractOne(f); err != nil {
			r.Close()
			return err
		}
	}
	if err := r.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

func (s *DirStore) extractOne(f *zip.File) error {
	// Flatten and reject path traversal; Garmin archives hold a single file
	// anyway.
	name := filepath.Base(f.Name)
	if name == "." || name == ".." || strings.Contains(name, string(os.PathSeparator)) {
		return fmt.Errorf("archive contains unsafe entry %q", f.Name)
	}
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(s.Path(name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("extracting %s: %w", name, err)
	}
	return dst.Close()
}
