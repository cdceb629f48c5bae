package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// asMatchError returns the first MatchError in the chain, wrapping
// anything else as an internal error.
func asMatchError(err error) *MatchError {
	var me *MatchError
	if stderrors.As(err, &me) {
		return me
	}
	return Wrap(ErrCodeInternal, err)
}

// FormatForCLI formats an error for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	me := asMatchError(err)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", me.Message)
	if me.Cause != nil && me.Cause.Error() != me.Message {
		fmt.Fprintf(&sb, "  Cause: %s\n", me.Cause.Error())
	}
	if me.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", me.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", me.Code)

	return sb.String()
}

// LogAttrs flattens an error into slog key-value pairs.
// Details are emitted in key order so log lines are stable.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	var me *MatchError
	if !stderrors.As(err, &me) {
		return []any{"error", err.Error()}
	}

	attrs := []any{
		"error_code", me.Code,
		"error", me.Message,
		"category", string(me.Category),
		"severity", string(me.Severity),
	}
	if me.Cause != nil {
		attrs = append(attrs, "cause", me.Cause.Error())
	}

	keys := make([]string, 0, len(me.Details))
	for k := range me.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, "detail_"+k, me.Details[k])
	}

	return attrs
}

// FormatForLog renders an error as a single line:
// "[CODE] message: cause (hint: suggestion)".
func FormatForLog(err error) string {
	if err == nil {
		return ""
	}

	me := asMatchError(err)

	var sb strings.Builder
	sb.WriteString(me.Error())
	if me.Cause != nil && me.Cause.Error() != me.Message {
		fmt.Fprintf(&sb, ": %s", me.Cause.Error())
	}
	if me.Suggestion != "" {
		fmt.Fprintf(&sb, " (hint: %s)", me.Suggestion)
	}
	return sb.String()
}
