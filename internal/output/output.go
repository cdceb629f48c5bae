// Package output provides consistent CLI output formatting for match and
// search results.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Aman-CERP/catalogmatch/internal/matcher"
	"github.com/Aman-CERP/catalogmatch/internal/retrieval"
	"github.com/Aman-CERP/catalogmatch/internal/selection"
	"github.com/Aman-CERP/catalogmatch/internal/ui"
)

// Writer provides formatted output for the CLI.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New creates a Writer. Color is used only when out is a terminal and
// NO_COLOR is unset.
func New(out io.Writer) *Writer {
	return NewWithColor(out, ui.IsTTY(out) && !ui.DetectNoColor())
}

// NewWithColor creates a Writer with explicit color choice.
func NewWithColor(out io.Writer, color bool) *Writer {
	return &Writer{out: out, styles: ui.GetStyles(!color)}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render("✓"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render("!"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render("✗"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Code prints a block with indentation.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Decisions prints one block per decision. With showCandidates the batch
// candidates are listed under each query.
func (w *Writer) Decisions(report *matcher.Report, showCandidates bool) {
	for i, d := range report.Decisions {
		_, _ = fmt.Fprintf(w.out, "%s %s\n",
			w.styles.Label.Render(fmt.Sprintf("[%d]", i+1)),
			w.styles.Header.Render(d.InputQuery))

		if d.Selected() {
			_, _ = fmt.Fprintf(w.out, "    %s %s  %s\n",
				w.styles.Success.Render("→"), *d.SelectedProductID, *d.SelectedProductName)
		} else {
			_, _ = fmt.Fprintf(w.out, "    %s %s\n",
				w.styles.Warning.Render("→"), w.styles.Dim.Render("no match"))
		}
		_, _ = fmt.Fprintf(w.out, "    %s %s\n", w.confidence(d.Confidence), d.Reason)

		if showCandidates && i < len(report.Batch) {
			item := report.Batch[i]
			if item.Degraded {
				_, _ = fmt.Fprintf(w.out, "    %s\n", w.styles.Warning.Render("lexical only, vector recall unavailable"))
			}
			for _, c := range item.Candidates {
				_, _ = fmt.Fprintf(w.out, "      %s %-16s %s\n",
					w.styles.Dim.Render(fmt.Sprintf("%.4f", c.HybridScore)), c.ProductID, c.ProductName)
			}
		}
		if i < len(report.Decisions)-1 {
			_, _ = fmt.Fprintln(w.out)
		}
	}
}

// Summary prints the one-line run summary.
func (w *Writer) Summary(report *matcher.Report) {
	msg := fmt.Sprintf("%d/%d queries matched in %s (run %s)",
		report.Matched(), len(report.Decisions), report.Duration.Round(time.Millisecond), report.RunID)
	if n := report.Degraded(); n > 0 {
		w.Warningf("%s, %d without vector recall", msg, n)
		return
	}
	w.Success(msg)
}

// Candidates prints a ranked candidate table for one query. limit <= 0
// prints all candidates.
func (w *Writer) Candidates(res *retrieval.Result, limit int) {
	_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.Label.Render("query:"), w.styles.Header.Render(res.Query))
	if res.Degraded() {
		w.Warning("vector recall unavailable, results are lexical only")
	}
	if len(res.Candidates) == 0 {
		_, _ = fmt.Fprintf(w.out, "   %s\n", w.styles.Dim.Render("no candidates"))
		return
	}

	_, _ = fmt.Fprintf(w.out, "%s\n", w.styles.Label.Render(
		fmt.Sprintf("%4s  %-8s %-8s %-8s %-3s %-16s %s", "#", "hybrid", "dist", "lexical", "num", "product_id", "name")))

	cands := res.Candidates
	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}
	for i, c := range cands {
		num := " "
		if c.NumericIdentityMatch == 1 {
			num = w.styles.Success.Render("#")
		}
		_, _ = fmt.Fprintf(w.out, "%4d  %-8.4f %-8.4f %-8.4f %-3s %-16s %s\n",
			i+1, c.HybridScore, c.SemanticDistance, c.LexicalScore, num, c.ProductID, c.ProductName)
	}
}

func (w *Writer) confidence(c selection.Confidence) string {
	label := fmt.Sprintf("(%s)", c)
	switch c {
	case selection.ConfidenceHigh:
		return w.styles.Success.Render(label)
	case selection.ConfidenceMedium:
		return w.styles.Warning.Render(label)
	default:
		return w.styles.Dim.Render(label)
	}
}
