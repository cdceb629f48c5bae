package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// LogEntry is one parsed JSON log line.
type LogEntry struct {
	Time    time.Time
	Level   string
	Msg     string
	Attrs   map[string]any
	Raw     string
	IsValid bool
}

// ViewerConfig configures the log viewer.
type ViewerConfig struct {
	// Level is the minimum level shown.
	Level string
	// Pattern filters on the raw line.
	Pattern *regexp.Regexp
	// ProductID keeps only lines whose product_id attribute matches.
	ProductID string
	// NoColor disables styling.
	NoColor bool
}

// Viewer reads and filters catalogmatch log files.
type Viewer struct {
	config ViewerConfig
	out    io.Writer
}

var levelStyles = map[string]lipgloss.Style{
	"debug": lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
	"info":  lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
	"warn":  lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
	"error": lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")),
}

// NewViewer creates a new log viewer.
func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	return &Viewer{config: cfg, out: out}
}

// Tail returns the matching entries among the last n lines of path.
func (v *Viewer) Tail(path string, n int) ([]LogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	scanner := bufio.NewScanner(file)
	const maxCapacity = 1024 * 1024
	scanner.Buffer(make([]byte, maxCapacity), maxCapacity)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	var entries []LogEntry
	for _, line := range lines {
		entry := parseLine(line)
		if v.matches(entry) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Follow streams new matching entries appended to path until ctx is done.
func (v *Viewer) Follow(ctx context.Context, path string, entries chan<- LogEntry) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	reader := bufio.NewReader(file)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				line, err := reader.ReadString('\n')
				if err != nil {
					break
				}
				line = strings.TrimSuffix(line, "\n")
				if line == "" {
					continue
				}
				entry := parseLine(line)
				if !v.matches(entry) {
					continue
				}
				select {
				case entries <- entry:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// FormatEntry renders an entry as a single line.
func (v *Viewer) FormatEntry(entry LogEntry) string {
	if !entry.IsValid {
		return entry.Raw
	}

	keys := make([]string, 0, len(entry.Attrs))
	for k := range entry.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(entry.Time.Format("15:04:05.000"))
	sb.WriteString(" ")
	sb.WriteString(v.formatLevel(entry.Level))
	sb.WriteString(" ")
	sb.WriteString(entry.Msg)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, entry.Attrs[k])
	}
	return sb.String()
}

// Print writes entries to the viewer output.
func (v *Viewer) Print(entries []LogEntry) {
	for _, entry := range entries {
		_, _ = fmt.Fprintln(v.out, v.FormatEntry(entry))
	}
}

func (v *Viewer) formatLevel(level string) string {
	label := strings.ToUpper(level)
	if len(label) > 5 {
		label = label[:5]
	}
	label = fmt.Sprintf("%-5s", label)
	if v.config.NoColor {
		return label
	}
	if style, ok := levelStyles[strings.ToLower(level)]; ok {
		return style.Render(label)
	}
	return label
}

func (v *Viewer) matches(entry LogEntry) bool {
	if v.config.Level != "" && LevelFromString(entry.Level) < LevelFromString(v.config.Level) {
		return false
	}
	if v.config.Pattern != nil && !v.config.Pattern.MatchString(entry.Raw) {
		return false
	}
	if v.config.ProductID != "" {
		id, _ := entry.Attrs["product_id"].(string)
		if id != v.config.ProductID {
			return false
		}
	}
	return true
}

func parseLine(line string) LogEntry {
	entry := LogEntry{Raw: line}

	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return entry
	}
	entry.IsValid = true

	if t, ok := data["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			entry.Time = parsed
		}
	}
	entry.Level, _ = data["level"].(string)
	entry.Msg, _ = data["msg"].(string)

	entry.Attrs = make(map[string]any, len(data))
	for k, val := range data {
		switch k {
		case "time", "level", "msg":
		default:
			entry.Attrs[k] = val
		}
	}
	return entry
}
