package codec

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidOptions is returned when a Request carries out-of-range quality settings.
var ErrInvalidOptions = errors.New("invalid codec options")

// QualityRange is a [Min, Max] fidelity range in [0, 1] for palette-based PNG output.
type QualityRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Options holds the per-format encoding settings.
type Options struct {
	JPEGQuality  int
	PNGQuality   QualityRange
	Threshold    float64 // keep the original when encoded >= original*Threshold; 0 means 1.0
	MaxDimension int     // 0 disables resizing
	Workers      int     // 0 means runtime.NumCPU()
}

// Validate reports whether the options are usable by a codec.
func (o Options) Validate() error {
	if o.JPEGQuality < 0 || o.JPEGQuality > 100 {
		return fmt.Errorf("%w: jpeg quality %d not in [0, 100]", ErrInvalidOptions, o.JPEGQuality)
	}
	q := o.PNGQuality
	if q.Min < 0 || q.Max > 1 || q.Min > q.Max {
		return fmt.Errorf("%w: png quality [%g, %g] not an ordered range in [0, 1]", ErrInvalidOptions, q.Min, q.Max)
	}
	if o.Threshold < 0 {
		return fmt.Errorf("%w: negative threshold %g", ErrInvalidOptions, o.Threshold)
	}
	if o.MaxDimension < 0 {
		return fmt.Errorf("%w: negative max dimension %d", ErrInvalidOptions, o.MaxDimension)
	}
	return nil
}

// Request describes one batch: every file matching Pattern is written to Destination.
type Request struct {
	Pattern     string
	Destination string
	Options     Options
}

// Result pairs an input file with the file written for it.
type Result struct {
	SourcePath      string `json:"sourcePath"`
	DestinationPath string `json:"destinationPath"`
}

// Action describes what a codec did with a single file.
type Action string

const (
	ActionCompressed Action = "compressed" // re-encoded output was kept
	ActionOriginal   Action = "original"   // re-encoded output was not smaller, original bytes kept
	ActionCopied     Action = "copied"     // source already optimized, copied verbatim
)

// FileEvent is emitted once per processed file.
type FileEvent struct {
	Result
	Action        Action `json:"action"`
	OriginalBytes int64  `json:"originalBytes"`
	EncodedBytes  int64  `json:"encodedBytes"`
}

// Hook receives per-file events. It may be called from several goroutines.
type Hook func(FileEvent)

// Codec re-encodes a batch of images.
type Codec interface {
	// Compress processes every file matched by the request and returns one
	// Result per file, in input order. Any per-file failure fails the batch.
	Compress(ctx context.Context, req Request) ([]Result, error)
}
