package pipeline

import (
	"context"
	"fmt"
	"time"

	"image-optimizer-go/internal/codec"
	"image-optimizer-go/internal/config"
	"image-optimizer-go/internal/logger"
	"image-optimizer-go/internal/manifest"
	"image-optimizer-go/internal/report"
	"image-optimizer-go/internal/statistics"

	"github.com/sirupsen/logrus"
)

// Event types passed to OnEvent.
const (
	EventBuildStarted   = "build_started"
	EventFileProcessed  = "file_processed"
	EventBuildCompleted = "build_completed"
	EventBuildError     = "build_error"
)

// Event reports build progress.
type Event struct {
	Type   string           `json:"type"`
	File   *codec.FileEvent `json:"file,omitempty"`
	Report *report.Report   `json:"report,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// Outcome holds everything one build produced.
type Outcome struct {
	Results  []codec.Result
	Report   *report.Report
	Manifest []manifest.Entry
}

// Builder runs compression, reporting and manifest generation in order.
type Builder struct {
	config *config.Config
	logger *logrus.Logger
	stats  *statistics.Statistics
	runner *CompressionRunner

	// OnEvent, when set, receives progress events. It may be called from codec workers.
	OnEvent func(Event)
}

// NewBuilder returns a Builder around c. stats may be nil.
func NewBuilder(cfg *config.Config, c codec.Codec, log *logrus.Logger, stats *statistics.Statistics) *Builder {
	if stats == nil {
		stats = statistics.NewStatistics()
	}
	return &Builder{
		config: cfg,
		logger: log,
		stats:  stats,
		runner: NewCompressionRunner(cfg, c, log),
	}
}

// New returns a Builder backed by the imaging codec, with per-file events
// feeding the builder's statistics and OnEvent.
func New(cfg *config.Config, log *logrus.Logger, meta codec.Metadata, stats *statistics.Statistics) *Builder {
	var b *Builder
	c := codec.NewImagingCodecWithHook(log, meta, func(ev codec.FileEvent) {
		b.HandleFileEvent(ev)
	})
	b = NewBuilder(cfg, c, log, stats)
	return b
}

// Stats returns the statistics the builder records into.
func (b *Builder) Stats() *statistics.Statistics {
	return b.stats
}

// HandleFileEvent records a codec file event and forwards it to OnEvent.
func (b *Builder) HandleFileEvent(ev codec.FileEvent) {
	b.stats.RecordEvent(ev)
	logger.WithFileOperation(b.logger, ev.DestinationPath, string(ev.Action)).Debug("File processed")
	b.emit(Event{Type: EventFileProcessed, File: &ev})
}

// Build compresses the inputs, aggregates the size report and writes the
// manifest. The first failing stage aborts the build.
func (b *Builder) Build(ctx context.Context) (*Outcome, error) {
	log := logger.WithOperation(b.logger, "build")
	log.Info("Starting image optimization")
	b.emit(Event{Type: EventBuildStarted})

	start := time.Now()
	results, err := b.runner.Run(ctx)
	b.stats.RecordStage(statistics.StageCompress, time.Since(start))
	if err != nil {
		return nil, b.fail(statistics.StageCompress, err)
	}
	log.Infof("Compressed %d images", len(results))

	start = time.Now()
	rep, err := report.Aggregate(results)
	b.stats.RecordStage(statistics.StageReport, time.Since(start))
	if err != nil {
		return nil, b.fail(statistics.StageReport, err)
	}

	entries, err := b.GenerateManifest()
	if err != nil {
		return nil, b.fail(statistics.StageManifest, err)
	}

	b.stats.Finalize()
	log.WithFields(logrus.Fields{
		"files":     rep.Summary.TotalFiles,
		"original":  rep.Summary.TotalOriginalBytes,
		"optimized": rep.Summary.TotalCompressedBytes,
		"reduction": report.Percent(rep.Summary.OverallReductionPercent),
	}).Info("Image optimization completed")
	b.emit(Event{Type: EventBuildCompleted, Report: rep})

	return &Outcome{
		Results:  results,
		Report:   rep,
		Manifest: entries,
	}, nil
}

// Report aggregates the current input and output directories without compressing.
func (b *Builder) Report() (*report.Report, error) {
	results, err := b.runner.Existing()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rep, err := report.Aggregate(results)
	b.stats.RecordStage(statistics.StageReport, time.Since(start))
	return rep, err
}

// GenerateManifest rebuilds the manifest from the output directory.
func (b *Builder) GenerateManifest() ([]manifest.Entry, error) {
	mb := manifest.NewBuilder(b.config.Manifest.Extensions)
	if b.config.Manifest.Pretty {
		mb.Indent = "  "
	}

	start := time.Now()
	entries, err := mb.Generate(b.config.OutputDirectory, b.config.ManifestPath)
	b.stats.RecordStage(statistics.StageManifest, time.Since(start))
	if err != nil {
		return nil, err
	}

	b.stats.SetManifestEntries(len(entries))
	logger.WithFile(b.logger, b.config.ManifestPath).Infof("Manifest written with %d entries", len(entries))
	return entries, nil
}

func (b *Builder) fail(stage string, err error) error {
	b.stats.AddError(b.config.InputGlob(), stage, err.Error())
	if stage != statistics.StageManifest {
		b.stats.IncrementFilesWithErrors()
	}
	b.stats.Finalize()
	logger.WithOperation(b.logger, stage).Errorf("Build failed: %v", err)
	b.emit(Event{Type: EventBuildError, Error: err.Error()})
	return fmt.Errorf("%s stage: %w", stage, err)
}

func (b *Builder) emit(ev Event) {
	if b.OnEvent != nil {
		b.OnEvent(ev)
	}
}
