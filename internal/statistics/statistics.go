package statistics

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"image-optimizer-go/internal/bytesize"
	"image-optimizer-go/internal/codec"
)

// Stage names used with RecordStage.
const (
	StageCompress = "compress"
	StageReport   = "report"
	StageManifest = "manifest"
)

// Statistics contains counters and timings for one optimizer run.
type Statistics struct {
	FilesProcessed    int64
	FilesCompressed   int64
	FilesKeptOriginal int64
	FilesCopied       int64
	FilesWithErrors   int64
	ManifestEntries   int64

	BytesIn  int64
	BytesOut int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64

	Errors []StatError

	mutex sync.RWMutex

	StageDurations map[string]time.Duration
	FileTypeStats  map[string]int64
}

// StatError represents an error that occurred during a run.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// Snapshot is a copy of the counters safe to serialize.
type Snapshot struct {
	FilesProcessed    int64            `json:"files_processed"`
	FilesCompressed   int64            `json:"files_compressed"`
	FilesKeptOriginal int64            `json:"files_kept_original"`
	FilesCopied       int64            `json:"files_copied"`
	FilesWithErrors   int64            `json:"files_with_errors"`
	ManifestEntries   int64            `json:"manifest_entries"`
	BytesIn           int64            `json:"bytes_in"`
	BytesOut          int64            `json:"bytes_out"`
	Duration          string           `json:"duration"`
	FilesPerSecond    float64          `json:"files_per_second"`
	FileTypes         map[string]int64 `json:"file_types"`
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:      time.Now(),
		Errors:         make([]StatError, 0),
		StageDurations: make(map[string]time.Duration),
		FileTypeStats:  make(map[string]int64),
	}
}

// RecordEvent counts one file handled by the codec.
func (s *Statistics) RecordEvent(ev codec.FileEvent) {
	atomic.AddInt64(&s.FilesProcessed, 1)
	switch ev.Action {
	case codec.ActionCompressed:
		atomic.AddInt64(&s.FilesCompressed, 1)
	case codec.ActionOriginal:
		atomic.AddInt64(&s.FilesKeptOriginal, 1)
	case codec.ActionCopied:
		atomic.AddInt64(&s.FilesCopied, 1)
	}

	atomic.AddInt64(&s.BytesIn, ev.OriginalBytes)
	if ev.Action == codec.ActionCompressed {
		atomic.AddInt64(&s.BytesOut, ev.EncodedBytes)
	} else {
		atomic.AddInt64(&s.BytesOut, ev.OriginalBytes)
	}

	s.IncrementFileType(strings.ToUpper(strings.TrimPrefix(filepath.Ext(ev.SourcePath), ".")))
}

// IncrementFilesWithErrors increases the count of files with errors by 1.
func (s *Statistics) IncrementFilesWithErrors() {
	atomic.AddInt64(&s.FilesWithErrors, 1)
}

// SetManifestEntries records how many entries the manifest holds.
func (s *Statistics) SetManifestEntries(n int) {
	atomic.StoreInt64(&s.ManifestEntries, int64(n))
}

// IncrementFileType increases the count for a specific file type by 1.
func (s *Statistics) IncrementFileType(fileType string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.FileTypeStats[fileType]++
}

// RecordStage stores how long a pipeline stage took.
func (s *Statistics) RecordStage(stage string, d time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.StageDurations[stage] = d
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Finalize calculates duration and throughput.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	processed := atomic.LoadInt64(&s.FilesProcessed)
	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(processed) / s.Duration.Seconds()
	}
}

// Snapshot returns a consistent copy of the counters.
func (s *Statistics) Snapshot() Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	types := make(map[string]int64, len(s.FileTypeStats))
	for k, v := range s.FileTypeStats {
		types[k] = v
	}
	return Snapshot{
		FilesProcessed:    atomic.LoadInt64(&s.FilesProcessed),
		FilesCompressed:   atomic.LoadInt64(&s.FilesCompressed),
		FilesKeptOriginal: atomic.LoadInt64(&s.FilesKeptOriginal),
		FilesCopied:       atomic.LoadInt64(&s.FilesCopied),
		FilesWithErrors:   atomic.LoadInt64(&s.FilesWithErrors),
		ManifestEntries:   atomic.LoadInt64(&s.ManifestEntries),
		BytesIn:           atomic.LoadInt64(&s.BytesIn),
		BytesOut:          atomic.LoadInt64(&s.BytesOut),
		Duration:          s.Duration.String(),
		FilesPerSecond:    s.FilesPerSecond,
		FileTypes:         types,
	}
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return fmt.Sprintf(`Image Optimizer Statistics Summary:

Files:
		Processed: %d
		Compressed: %d
		Kept Original: %d
		Copied As Is: %d
		Errors: %d
		Manifest Entries: %d

Bytes:
		In: %s
		Out: %s

Performance:
		Duration: %v
		Files/Second: %.2f
		Compress Stage: %v
		Report Stage: %v
		Manifest Stage: %v`,
		atomic.LoadInt64(&s.FilesProcessed),
		atomic.LoadInt64(&s.FilesCompressed),
		atomic.LoadInt64(&s.FilesKeptOriginal),
		atomic.LoadInt64(&s.FilesCopied),
		atomic.LoadInt64(&s.FilesWithErrors),
		atomic.LoadInt64(&s.ManifestEntries),
		bytesize.ReadableSize(atomic.LoadInt64(&s.BytesIn)),
		bytesize.ReadableSize(atomic.LoadInt64(&s.BytesOut)),
		s.Duration,
		s.FilesPerSecond,
		s.StageDurations[StageCompress],
		s.StageDurations[StageReport],
		s.StageDurations[StageManifest])
}

// GetFileTypeBreakdown returns a formatted breakdown of file types processed.
func (s *Statistics) GetFileTypeBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FileTypeStats) == 0 {
		return "No file type statistics available"
	}

	types := make([]string, 0, len(s.FileTypeStats))
	for t := range s.FileTypeStats {
		types = append(types, t)
	}
	sort.Strings(types)

	result := "File Type Breakdown:\n"
	for _, t := range types {
		result += fmt.Sprintf("  %s: %d\n", t, s.FileTypeStats[t])
	}
	return result
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}
