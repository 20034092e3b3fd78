package codec

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"image-optimizer-go/internal/logger"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// Metadata lets the codec skip already optimized sources and carry EXIF data
// over to encoded outputs.
type Metadata interface {
	IsOptimized(path string) bool
	Stamp(src, dst string) error
}

// ImagingCodec is the default Codec. It re-encodes JPEG files at a fixed
// quality and reduces PNG files to a quantized palette.
type ImagingCodec struct {
	logger   *logrus.Logger
	metadata Metadata
	hook     Hook
}

// NewImagingCodec returns an ImagingCodec. meta may be nil.
func NewImagingCodec(log *logrus.Logger, meta Metadata) *ImagingCodec {
	return NewImagingCodecWithHook(log, meta, nil)
}

// NewImagingCodecWithHook returns an ImagingCodec that reports every processed file to hook.
func NewImagingCodecWithHook(log *logrus.Logger, meta Metadata, hook Hook) *ImagingCodec {
	return &ImagingCodec{
		logger:   log,
		metadata: meta,
		hook:     hook,
	}
}

// Compress encodes every file matched by req.Pattern into req.Destination.
func (c *ImagingCodec) Compress(ctx context.Context, req Request) ([]Result, error) {
	if err := req.Options.Validate(); err != nil {
		return nil, err
	}

	files, err := CollectFiles(req.Pattern)
	if err != nil {
		return nil, fmt.Errorf("collect files: %w", err)
	}
	if len(files) == 0 {
		c.logger.Infof("No images matched %s", req.Pattern)
		return []Result{}, nil
	}

	destinations, err := DestinationPaths(files, req.Destination)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(req.Destination, 0755); err != nil {
		return nil, fmt.Errorf("create destination dir: %w", err)
	}

	numWorkers := req.Options.Workers
	if numWorkers <= 0 {
		numWorkers = max(runtime.NumCPU(), 2)
	}
	numWorkers = min(numWorkers, len(files))

	type job struct {
		index int
		path  string
		dst   string
	}
	type outcome struct {
		index int
		event FileEvent
		err   error
	}

	jobs := make(chan job, len(files))
	outcomes := make(chan outcome, len(files))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					return
				}
				ev, err := c.compressOne(j.path, j.dst, req)
				if err == nil && c.hook != nil {
					c.hook(ev)
				}
				outcomes <- outcome{index: j.index, event: ev, err: err}
			}
		}()
	}

	for i, path := range files {
		jobs <- job{index: i, path: path, dst: destinations[i]}
	}
	close(jobs)

	wg.Wait()
	close(outcomes)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]Result, len(files))
	errs := make([]error, len(files))
	for o := range outcomes {
		results[o.index] = o.event.Result
		errs[o.index] = o.err
	}
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("compress %s: %w", files[i], err)
		}
	}
	return results, nil
}

// compressOne encodes a single file and reports what was written.
func (c *ImagingCodec) compressOne(inputPath, outPath string, req Request) (FileEvent, error) {
	log := logger.WithFileOperation(c.logger, inputPath, "compress")

	info, err := os.Stat(inputPath)
	if err != nil {
		return FileEvent{}, fmt.Errorf("stat source: %w", err)
	}

	ev := FileEvent{
		Result:        Result{SourcePath: inputPath, DestinationPath: outPath},
		OriginalBytes: info.Size(),
	}

	if c.metadata != nil && c.metadata.IsOptimized(inputPath) {
		if err := copyFile(inputPath, outPath); err != nil {
			return FileEvent{}, fmt.Errorf("copy optimized source: %w", err)
		}
		ev.Action = ActionCopied
		ev.EncodedBytes = info.Size()
		log.Debug("Source already optimized, copied as is")
		return ev, nil
	}

	format, err := imaging.FormatFromFilename(inputPath)
	if err != nil {
		return FileEvent{}, err
	}

	img, err := imaging.Open(inputPath, imaging.AutoOrientation(true))
	if err != nil {
		return FileEvent{}, fmt.Errorf("decode: %w", err)
	}
	img = fit(img, req.Options.MaxDimension)

	var buf bytes.Buffer
	if err := encode(&buf, img, format, req.Options); err != nil {
		return FileEvent{}, fmt.Errorf("encode: %w", err)
	}
	ev.EncodedBytes = int64(buf.Len())

	threshold := req.Options.Threshold
	if threshold <= 0 {
		threshold = 1.0
	}
	if float64(ev.EncodedBytes) >= float64(ev.OriginalBytes)*threshold {
		if err := copyFile(inputPath, outPath); err != nil {
			return FileEvent{}, fmt.Errorf("copy original: %w", err)
		}
		ev.Action = ActionOriginal
		log.Debugf("Encoded output not smaller (%d >= %d), kept original", ev.EncodedBytes, ev.OriginalBytes)
		return ev, nil
	}

	if err := writeAtomic(outPath, buf.Bytes()); err != nil {
		return FileEvent{}, err
	}
	ev.Action = ActionCompressed

	if c.metadata != nil && format == imaging.JPEG {
		if err := c.metadata.Stamp(inputPath, outPath); err != nil {
			log.Warnf("EXIF not carried over: %v", err)
		}
	}

	log.Debugf("Compressed %d -> %d bytes", ev.OriginalBytes, ev.EncodedBytes)
	return ev, nil
}

func fit(img image.Image, maxDimension int) image.Image {
	if maxDimension <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= maxDimension && b.Dy() <= maxDimension {
		return img
	}
	return imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
}

func encode(w io.Writer, img image.Image, format imaging.Format, opts Options) error {
	switch format {
	case imaging.JPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(opts.JPEGQuality))
	case imaging.PNG:
		paletted, score := quantizeImage(img, opts.PNGQuality)
		var out image.Image = paletted
		if score < opts.PNGQuality.Min {
			out = img
		}
		return imaging.Encode(w, out, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	default:
		return fmt.Errorf("unsupported format %s", format)
	}
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	tmpPath := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write tmp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// copyFile copies src to dst through a temporary file.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmpPath := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp")
	out, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, dst)
}
