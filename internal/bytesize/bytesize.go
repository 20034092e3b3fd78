// Package bytesize formats byte counts for reports and manifests.
package bytesize

import (
	"math"
	"strconv"
)

const unit = 1024

// Units is the ladder used by ReadableSize, smallest first.
var Units = []string{"Bytes", "KB", "MB", "GB", "TB"}

// UnitIndex returns the position in Units that ReadableSize picks for bytes.
// It is floor(log1024(bytes)) clamped to the last unit, computed with integer
// division so exact powers of 1024 land on the right unit.
func UnitIndex(bytes int64) int {
	if bytes <= 0 {
		return 0
	}
	i := 0
	for n := bytes; n >= unit && i < len(Units)-1; n /= unit {
		i++
	}
	return i
}

// ReadableSize returns a human-readable size such as "1000 Bytes", "2 KB" or
// "1.5 MB". The value is rounded to two decimals without trailing zeros.
// Zero and negative counts render as "0 Bytes".
func ReadableSize(bytes int64) string {
	if bytes <= 0 {
		return "0 " + Units[0]
	}
	i := UnitIndex(bytes)
	value := float64(bytes) / math.Pow(unit, float64(i))
	value = math.Round(value*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + Units[i]
}
