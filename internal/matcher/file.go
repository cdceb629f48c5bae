package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
)

// FileOptions controls RunFile output.
type FileOptions struct {
	// CandidatesPath, when set, receives the candidate batch as JSON.
	CandidatesPath string
}

// RunFile reads raw text from inPath, runs the batch and writes the
// decisions to outPath as an indented JSON array. Nothing is written
// unless the run validates.
func (o *Orchestrator) RunFile(ctx context.Context, inPath, outPath string, opts FileOptions) (*Report, error) {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return nil, cmerrors.IOError(fmt.Sprintf("failed to read input %s", inPath), err).
			WithSuggestion("Create the input file or pass --input")
	}

	report, err := o.Run(ctx, strings.TrimSpace(string(data)))
	if err != nil {
		return nil, err
	}

	if opts.CandidatesPath != "" {
		if err := WriteJSON(opts.CandidatesPath, report.Batch); err != nil {
			return nil, err
		}
	}
	if err := WriteJSON(outPath, report.Decisions); err != nil {
		return nil, err
	}
	return report, nil
}

// WriteJSON writes v to path with two-space indentation, replacing the
// file atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return cmerrors.New(cmerrors.ErrCodeInternal, "failed to encode output", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cmerrors.New(cmerrors.ErrCodeFilePermission, fmt.Sprintf("failed to create %s", dir), err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return cmerrors.New(cmerrors.ErrCodeFilePermission, fmt.Sprintf("failed to create temp file in %s", dir), err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return cmerrors.New(cmerrors.ErrCodeFilePermission, fmt.Sprintf("failed to write %s", path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return cmerrors.New(cmerrors.ErrCodeFilePermission, fmt.Sprintf("failed to write %s", path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return cmerrors.New(cmerrors.ErrCodeFilePermission, fmt.Sprintf("failed to replace %s", path), err)
	}
	return nil
}
