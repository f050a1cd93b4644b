package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const (
	separator       = "───────────────────────────────────────────────────────────"
	doubleSeparator = "═══════════════════════════════════════════════════════════"
	dateTimeLayout  = "2006-01-02 15:04:05"
)

// PrintHeader prints a titled block header
func PrintHeader(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, doubleSeparator)
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, separator)
}

// PrintSeparator prints a visual separator
func PrintSeparator(w io.Writer) {
	fmt.Fprintln(w, separator)
}

// PrintSuccess prints a success message
func PrintSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(w io.Writer, message string) {
	fmt.Fprintf(w, "❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(w io.Writer, message string) {
	fmt.Fprintf(w, "ℹ️  %s\n", message)
}

// PrintWarning prints a warning message
func PrintWarning(w io.Writer, message string) {
	fmt.Fprintf(w, "⚠️  %s\n", message)
}

// PrintKeyValue prints one aligned key-value pair
func PrintKeyValue(w io.Writer, key string, value string, keyWidth int) {
	fmt.Fprintf(w, "   %-*s : %s\n", keyWidth, key, value)
}

// PrintTable prints rows under a header, each column as wide as its widest cell
func PrintTable(w io.Writer, columns []string, rows [][]string) {
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = len(c)
	}
	for _, row := range rows {
		for i, v := range row {
			if i < len(widths) && len(v) > widths[i] {
				widths[i] = len(v)
			}
		}
	}

	printRow := func(values []string) {
		for i, v := range values {
			fmt.Fprintf(w, "%-*s", widths[i], v)
			if i < len(values)-1 {
				fmt.Fprint(w, "  ")
			}
		}
		fmt.Fprintln(w)
	}

	printRow(columns)
	total := 0
	for i, width := range widths {
		total += width
		if i < len(widths)-1 {
			total += 2 // spacing
		}
	}
	fmt.Fprintln(w, strings.Repeat("─", total))
	for _, row := range rows {
		printRow(row)
	}
}

// formatTime renders a timestamp or "-" when zero
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateTimeLayout)
}

// formatValue renders an optional float
func formatValue(v *float64) string {
	if v == nil {
		return "NaN"
	}
	return fmt.Sprintf("%.4f", *v)
}

const partsBar pb.ProgressBarTemplate = `{{with string . "prefix"}}{{.}} {{end}}{{counters . }} {{bar . }} {{percent . }} {{etime . }}`

// newPartsBar returns an upload progress callback drawing to w and a function that finishes the bar
func newPartsBar(w io.Writer, prefix string) (func(done, total int), func()) {
	var bar *pb.ProgressBar
	progress := func(done, total int) {
		if bar == nil {
			bar = partsBar.New(total)
			bar.SetWriter(w)
			bar.Set("prefix", prefix)
			bar.Start()
		}
		bar.SetCurrent(int64(done))
	}
	finish := func() {
		if bar != nil {
			bar.Finish()
		}
	}
	return progress, finish
}
