// Package inscription holds the value types shared by the quote, recalculation
// and payment layers: files, quotes, fee rates and the size window.
package inscription

import (
	"fmt"
	"math"
)

// Size window for inscribable content, in bytes.
const (
	MinSize int64 = 200 * 1024
	MaxSize int64 = 400 * 1024
)

// IsSizeValid reports whether n bytes fits the inscription size window.
func IsSizeValid(n int64) bool {
	return n >= MinSize && n <= MaxSize
}

// FormatSize renders a byte count as rounded kilobytes, e.g. "250kb".
func FormatSize(n int64) string {
	return fmt.Sprintf("%dkb", int64(math.Round(float64(n)/1024)))
}

// SizeHint returns the validation helper text shown next to a compressed file.
func SizeHint(n int64, compressing bool) string {
	switch {
	case compressing:
		return "Compressing..."
	case n < MinSize:
		return "File too small. Increase quality slider."
	case n > MaxSize:
		return "File too large. Decrease quality slider."
	default:
		return "File size is valid! Ready to calculate."
	}
}
