// Package metadata reads and writes the EXIF fields the optimizer cares about:
// the Software stamp marking a file as already optimized, and the descriptive
// tags carried from a source image to its re-encoded output.
package metadata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// DefaultSoftwareTag is written to the EXIF Software field of optimized JPEGs.
const DefaultSoftwareTag = "image-optimizer"

// ErrNoSoftwareTag is returned when a file has no readable EXIF Software field.
var ErrNoSoftwareTag = errors.New("no EXIF software tag")

// carriedTags are copied from a source to its output. Orientation is left out
// because decoding already applies it to the pixels.
var carriedTags = []string{
	"Make",
	"Model",
	"LensModel",
	"DateTimeOriginal",
	"CreateDate",
	"Artist",
	"Copyright",
	"ImageDescription",
	"GPSLatitude",
	"GPSLatitudeRef",
	"GPSLongitude",
	"GPSLongitudeRef",
	"GPSAltitude",
}

// Config selects which metadata features are active.
type Config struct {
	SkipOptimized bool
	Preserve      bool
	SoftwareTag   string
}

// Handler implements the codec metadata hooks. The exiftool process is started
// on first use and shared by all workers.
type Handler struct {
	cfg    Config
	logger *logrus.Logger

	once  sync.Once
	et    *exiftool.Exiftool
	etErr error
}

// NewHandler returns a Handler for cfg.
func NewHandler(cfg Config, log *logrus.Logger) *Handler {
	if cfg.SoftwareTag == "" {
		cfg.SoftwareTag = DefaultSoftwareTag
	}
	return &Handler{cfg: cfg, logger: log}
}

// IsOptimized reports whether path carries the configured Software stamp.
// It always returns false when skipping is disabled.
func (h *Handler) IsOptimized(path string) bool {
	if !h.cfg.SkipOptimized {
		return false
	}

	var (
		tag string
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		tag, err = SoftwareTag(path)
	default:
		tag, err = h.softwareTagExiftool(path)
	}
	if err != nil {
		h.logger.WithField("file", path).Debugf("No optimizer stamp: %v", err)
		return false
	}
	return strings.Contains(tag, h.cfg.SoftwareTag)
}

// Stamp copies the carried EXIF tags from src to dst and sets the Software
// field on dst. It does nothing when preservation is disabled.
func (h *Handler) Stamp(src, dst string) error {
	if !h.cfg.Preserve {
		return nil
	}
	et, err := h.exiftool()
	if err != nil {
		return err
	}

	source := et.ExtractMetadata(src)
	if len(source) == 0 {
		return fmt.Errorf("exiftool returned no metadata for %s", src)
	}
	if source[0].Err != nil {
		return fmt.Errorf("read metadata: %w", source[0].Err)
	}

	target := exiftool.EmptyFileMetadata()
	target.File = dst
	for _, k := range carriedTags {
		if v, ok := source[0].Fields[k]; ok && v != nil {
			target.Fields[k] = v
		}
	}
	target.SetString("Software", h.cfg.SoftwareTag)

	batch := []exiftool.FileMetadata{target}
	et.WriteMetadata(batch)
	if batch[0].Err != nil {
		return fmt.Errorf("write metadata: %w", batch[0].Err)
	}
	return nil
}

// Close stops the exiftool process if it was started.
func (h *Handler) Close() error {
	if h.et != nil {
		return h.et.Close()
	}
	return nil
}

func (h *Handler) exiftool() (*exiftool.Exiftool, error) {
	h.once.Do(func() {
		h.et, h.etErr = exiftool.NewExiftool()
		if h.etErr != nil {
			h.etErr = fmt.Errorf("start exiftool: %w", h.etErr)
		}
	})
	return h.et, h.etErr
}

func (h *Handler) softwareTagExiftool(path string) (string, error) {
	et, err := h.exiftool()
	if err != nil {
		return "", err
	}
	files := et.ExtractMetadata(path)
	if len(files) == 0 {
		return "", ErrNoSoftwareTag
	}
	if files[0].Err != nil {
		return "", files[0].Err
	}
	tag, err := files[0].GetString("Software")
	if err != nil {
		return "", ErrNoSoftwareTag
	}
	return tag, nil
}

// SoftwareTag returns the EXIF Software field of a JPEG file.
func SoftwareTag(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode EXIF: %w", err)
	}
	tag, err := x.Get(exif.Software)
	if err != nil {
		return "", ErrNoSoftwareTag
	}
	val, err := tag.StringVal()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoSoftwareTag, err)
	}
	return val, nil
}
