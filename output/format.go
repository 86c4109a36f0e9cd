// Package output renders summaries for people (console tables) and for
// downstream tools (JSON and CSV files).
package output

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// FormatHeader underlines a section title.
func FormatHeader(title string) string {
	return title + "\n" + strings.Repeat("=", len(title))
}

// FormatBytes renders a byte count with binary units, e.g. "1.5 GiB".
func FormatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

// FormatCount renders a count with thousands separators.
func FormatCount(n int64) string {
	return humanize.Comma(n)
}

// FormatPercent renders part as a percentage of whole.
func FormatPercent(part, whole int64) string {
	if whole == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(part)*100/float64(whole))
}

// FormatCost renders a monthly cost in dollars.
func FormatCost(usd float64) string {
	return "$" + humanize.CommafWithDigits(usd, 2)
}

// ExtensionLabel names the empty extension.
func ExtensionLabel(ext string) string {
	if ext == "" {
		return "(none)"
	}
	return ext
}
