package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Aman-CERP/catalogmatch/internal/ingest"
	"github.com/Aman-CERP/catalogmatch/internal/store"
)

// CatalogState is what a successful ingestion recorded.
type CatalogState struct {
	Model      string
	Dimensions int
	Entries    int
	IngestedAt string
	Source     string
}

// CheckCatalog reports whether dataDir holds an ingested catalog. The
// returned state is nil when it does not.
func (c *Checker) CheckCatalog(ctx context.Context, dataDir string) (*CatalogState, CheckResult) {
	result := CheckResult{Name: "catalog", Required: true}

	dbPath := filepath.Join(dataDir, ingest.CatalogDBName)
	if _, err := os.Stat(dbPath); err != nil {
		result.Status = StatusFail
		result.Message = "not ingested"
		result.Details = "Run `catalogmatch ingest <catalog-file>` first"
		return nil, result
	}

	db, err := store.OpenCatalogStore(ctx, dbPath)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot open %s: %v", dbPath, err)
		return nil, result
	}
	defer func() { _ = db.Close() }()

	state := &CatalogState{}
	values := map[string]*string{
		ingest.StateKeyModel:      &state.Model,
		ingest.StateKeyIngestedAt: &state.IngestedAt,
		ingest.StateKeySource:     &state.Source,
	}
	for key, dst := range values {
		if *dst, err = db.GetState(ctx, key); err != nil {
			result.Status = StatusFail
			result.Message = err.Error()
			return nil, result
		}
	}
	for key, dst := range map[string]*int{
		ingest.StateKeyDimensions: &state.Dimensions,
		ingest.StateKeyEntries:    &state.Entries,
	} {
		text, err := db.GetState(ctx, key)
		if err != nil {
			result.Status = StatusFail
			result.Message = err.Error()
			return nil, result
		}
		*dst, _ = strconv.Atoi(text)
	}

	if state.Entries == 0 || state.Dimensions == 0 {
		result.Status = StatusFail
		result.Message = "ingestion did not complete"
		result.Details = "Re-run `catalogmatch ingest <catalog-file>`"
		return nil, result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d entries, %s (%d dims)", state.Entries, state.Model, state.Dimensions)
	result.Details = fmt.Sprintf("ingested %s from %s", state.IngestedAt, state.Source)

	if _, err := os.Stat(filepath.Join(dataDir, ingest.VectorsName)); err != nil {
		result.Status = StatusWarn
		result.Message += ", vector index missing (rebuilt on next open)"
	}
	return state, result
}
