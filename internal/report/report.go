// Package report computes per-file and total size reduction for a batch of
// compression results.
package report

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"image-optimizer-go/internal/codec"
)

var (
	// ErrFileNotFound is returned when a source or destination path does not exist.
	ErrFileNotFound = errors.New("file not found")
	// ErrStat is returned when a path exists but cannot be stat'ed.
	ErrStat = errors.New("stat failure")
)

// FileMetric is the size comparison for one compressed file.
type FileMetric struct {
	FileName         string  `json:"fileName"`
	OriginalBytes    int64   `json:"originalBytes"`
	CompressedBytes  int64   `json:"compressedBytes"`
	ReductionPercent float64 `json:"reductionPercent"`
}

// Summary aggregates all FileMetrics of a run.
type Summary struct {
	TotalFiles              int     `json:"totalFiles"`
	TotalOriginalBytes      int64   `json:"totalOriginalBytes"`
	TotalCompressedBytes    int64   `json:"totalCompressedBytes"`
	OverallReductionPercent float64 `json:"overallReductionPercent"`
}

// Report is the full outcome of Aggregate.
type Report struct {
	Files   []FileMetric `json:"files"`
	Summary Summary      `json:"summary"`
}

// Reduced returns the reduction percentage and whether it is defined.
// It is undefined when the original file is empty.
func (m FileMetric) Reduced() (float64, bool) {
	return m.ReductionPercent, m.OriginalBytes > 0
}

// Reduced returns the overall reduction percentage and whether it is defined.
func (s Summary) Reduced() (float64, bool) {
	return s.OverallReductionPercent, s.TotalOriginalBytes > 0
}

// SavedBytes returns how many bytes the batch saved; negative when outputs grew.
func (s Summary) SavedBytes() int64 {
	return s.TotalOriginalBytes - s.TotalCompressedBytes
}

// Aggregate stats every source and destination in results and builds the report.
// The first inaccessible path aborts the aggregation and no report is returned.
func Aggregate(results []codec.Result) (*Report, error) {
	rep := &Report{Files: make([]FileMetric, 0, len(results))}

	for _, r := range results {
		original, err := fileSize(r.SourcePath, "source")
		if err != nil {
			return nil, err
		}
		compressed, err := fileSize(r.DestinationPath, "destination")
		if err != nil {
			return nil, err
		}

		rep.Files = append(rep.Files, FileMetric{
			FileName:         filepath.Base(r.DestinationPath),
			OriginalBytes:    original,
			CompressedBytes:  compressed,
			ReductionPercent: ReductionPercent(original, compressed),
		})
		rep.Summary.TotalOriginalBytes += original
		rep.Summary.TotalCompressedBytes += compressed
	}

	rep.Summary.TotalFiles = len(rep.Files)
	rep.Summary.OverallReductionPercent = ReductionPercent(rep.Summary.TotalOriginalBytes, rep.Summary.TotalCompressedBytes)
	return rep, nil
}

// ReductionPercent returns (1 - compressed/original) * 100 rounded to two
// decimals. It is 0 when original is 0, where the ratio is undefined.
func ReductionPercent(original, compressed int64) float64 {
	if original <= 0 {
		return 0
	}
	p := (1 - float64(compressed)/float64(original)) * 100
	return math.Round(p*100) / 100
}

// Percent formats a reduction percentage as "60.00%".
func Percent(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}

func fileSize(path, role string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s %s", ErrFileNotFound, role, path)
		}
		return 0, fmt.Errorf("%w: %s %s: %v", ErrStat, role, path, err)
	}
	return info.Size(), nil
}
