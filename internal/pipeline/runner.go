package pipeline

import (
	"context"
	"fmt"
	"os"

	"image-optimizer-go/internal/codec"
	"image-optimizer-go/internal/config"

	"github.com/sirupsen/logrus"
)

// CompressionRunner turns the configuration into a codec request.
type CompressionRunner struct {
	config *config.Config
	codec  codec.Codec
	logger *logrus.Logger
}

// NewCompressionRunner returns a new CompressionRunner.
func NewCompressionRunner(cfg *config.Config, c codec.Codec, log *logrus.Logger) *CompressionRunner {
	return &CompressionRunner{
		config: cfg,
		codec:  c,
		logger: log,
	}
}

// Request returns the codec request built from the configuration.
func (r *CompressionRunner) Request() codec.Request {
	return codec.Request{
		Pattern:     r.config.InputGlob(),
		Destination: r.config.OutputDirectory,
		Options:     r.config.CodecOptions(),
	}
}

// Run ensures the output directory exists and returns the codec results unchanged.
func (r *CompressionRunner) Run(ctx context.Context) ([]codec.Result, error) {
	req := r.Request()

	if err := os.MkdirAll(req.Destination, 0755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", req.Destination, err)
	}

	r.logger.WithFields(logrus.Fields{
		"pattern":      req.Pattern,
		"destination":  req.Destination,
		"jpeg_quality": req.Options.JPEGQuality,
		"png_quality":  fmt.Sprintf("%g-%g", req.Options.PNGQuality.Min, req.Options.PNGQuality.Max),
	}).Info("Compressing images")

	return r.codec.Compress(ctx, req)
}

// Existing pairs every input with its counterpart in the output directory
// without running the codec.
func (r *CompressionRunner) Existing() ([]codec.Result, error) {
	req := r.Request()
	files, err := codec.CollectFiles(req.Pattern)
	if err != nil {
		return nil, err
	}

	destinations, err := codec.DestinationPaths(files, req.Destination)
	if err != nil {
		return nil, err
	}

	results := make([]codec.Result, 0, len(files))
	for i, src := range files {
		results = append(results, codec.Result{
			SourcePath:      src,
			DestinationPath: destinations[i],
		})
	}
	return results, nil
}
