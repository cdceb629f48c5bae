package lifecycle

import (
	"fmt"
	"io"

	"github.com/Aman-CERP/catalogmatch/internal/ui"
)

// FormatBytes formats bytes in human-readable form.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// PullProgressPrinter returns a progress function that redraws a bar on
// w for byte-counted layers and prints other status lines once.
func PullProgressPrinter(w io.Writer) func(PullProgress) {
	lastStatus := ""
	inBar := false

	return func(p PullProgress) {
		if p.Total > 0 {
			_, _ = fmt.Fprintf(w, "\r[%s] %3.0f%% %s/%s",
				ui.RenderProgressBar(int(p.Completed), int(p.Total), 40), p.Percent,
				FormatBytes(p.Completed), FormatBytes(p.Total))
			inBar = true
			return
		}
		if p.Status == lastStatus {
			return
		}
		if inBar {
			_, _ = fmt.Fprintln(w)
			inBar = false
		}
		lastStatus = p.Status
		_, _ = fmt.Fprintf(w, "%s\n", p.Status)
	}
}
