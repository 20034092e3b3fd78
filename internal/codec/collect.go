package codec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrDuplicateName is returned when two inputs would be written to the same output file.
var ErrDuplicateName = errors.New("inputs share an output file name")

// SupportedExtensions lists the input formats the imaging codec can encode.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png"}

// CollectFiles expands a glob pattern (with brace and ** support) and returns
// the regular files with a supported extension, sorted.
func CollectFiles(pattern string) ([]string, error) {
	if !doublestar.ValidatePathPattern(pattern) {
		return nil, fmt.Errorf("invalid input pattern: %s", pattern)
	}
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		if !isSupported(m) {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}

// DestinationPaths maps every input to dir/<base name>, in input order.
// Two inputs with the same base name fail with ErrDuplicateName.
func DestinationPaths(files []string, dir string) ([]string, error) {
	seen := make(map[string]string, len(files))
	paths := make([]string, len(files))
	for i, f := range files {
		base := filepath.Base(f)
		if prev, ok := seen[base]; ok {
			return nil, fmt.Errorf("%w: %s and %s both map to %s", ErrDuplicateName, prev, f, filepath.Join(dir, base))
		}
		seen[base] = f
		paths[i] = filepath.Join(dir, base)
	}
	return paths, nil
}

func isSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}
