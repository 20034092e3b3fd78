// Package manifest describes the images present in an output directory and
// persists that description as a JSON array.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"image-optimizer-go/internal/bytesize"
)

var (
	// ErrDirectoryNotFound is returned when the scanned directory does not exist.
	ErrDirectoryNotFound = errors.New("directory not found")
	// ErrWriteFailure is returned when the manifest file cannot be written.
	ErrWriteFailure = errors.New("manifest write failure")
)

// DefaultExtensions are the image types listed in a manifest.
var DefaultExtensions = []string{"jpg", "jpeg", "png", "webp", "gif"}

// Entry describes one image. Field order is part of the file format.
type Entry struct {
	Filename     string `json:"filename"`
	SizeReadable string `json:"sizeReadable"`
	Type         string `json:"type"`
}

// Builder scans directories and writes manifests.
type Builder struct {
	extensions []string
	// Indent pretty-prints the manifest when non-empty.
	Indent string
}

// NewBuilder returns a Builder accepting the given extensions, with or without
// a leading dot, matched case-insensitively. Empty means DefaultExtensions.
func NewBuilder(extensions []string) *Builder {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	return &Builder{extensions: normalized}
}

// Generate scans dir and writes the result to path.
func (b *Builder) Generate(dir, path string) ([]Entry, error) {
	entries, err := b.Scan(dir)
	if err != nil {
		return nil, err
	}
	if err := b.Write(path, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Scan lists dir (non-recursively) and returns one Entry per supported image,
// ordered by filename.
func (b *Builder) Scan(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
		}
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if !b.Accepts(name) {
			continue
		}
		// os.Stat follows symlinks so linked images are listed with the target's size
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", filepath.Join(dir, name), err)
		}
		if info.IsDir() {
			continue
		}
		entries = append(entries, Entry{
			Filename:     name,
			SizeReadable: bytesize.ReadableSize(info.Size()),
			Type:         TypeOf(name),
		})
	}
	return entries, nil
}

// Accepts reports whether name ends with one of the builder's extensions.
func (b *Builder) Accepts(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range b.extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Encode serializes entries. An empty set encodes as [].
func (b *Builder) Encode(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if b.Indent != "" {
		enc.SetIndent("", b.Indent)
	}
	if err := enc.Encode(entries); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Write replaces the manifest at path. The data goes to a temporary file in
// the same directory first, so a failed write leaves the old manifest intact.
func (b *Builder) Write(path string, entries []Entry) error {
	data, err := b.Encode(entries)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrWriteFailure, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFailure, path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %s: %v", ErrWriteFailure, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %s: %v", ErrWriteFailure, path, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %s: %v", ErrWriteFailure, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %s: %v", ErrWriteFailure, path, err)
	}
	return nil
}

// Read loads a manifest written by Write.
func Read(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return entries, nil
}

// TypeOf returns the lowercase text after the last dot of name.
func TypeOf(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}
