package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/catalogmatch/internal/config"
	"github.com/Aman-CERP/catalogmatch/internal/embed"
	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
	"github.com/Aman-CERP/catalogmatch/internal/ingest"
	"github.com/Aman-CERP/catalogmatch/internal/llm/mock"
)

func ingestedConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.csv")
	require.NoError(t, os.WriteFile(catalogPath, []byte(
		"product_id,product_name,category,brand\n"+
			"PSU-850,Seasonic Focus GX-850,Power Supply,Seasonic\n"+
			"GPU-4080,NVIDIA GeForce RTX 4080,Graphics Card,NVIDIA\n"), 0o644))

	cfg := config.NewConfig()
	cfg.Catalog.DataDir = filepath.Join(dir, "data")
	cfg.Embeddings.Provider = "static"

	p, err := ingest.NewPipeline(embed.NewStaticEmbedder())
	require.NoError(t, err)
	defer p.Release()
	_, err = p.Run(context.Background(), catalogPath, cfg.Catalog.DataDir)
	require.NoError(t, err)
	return cfg
}

func TestOpen_RetrievalOnly(t *testing.T) {
	// Given: an ingested catalog and no language model configuration
	cfg := ingestedConfig(t)
	cfg.LLM.APIKey = ""

	// When: opening for retrieval only
	a, err := Open(context.Background(), cfg, RetrievalOnly())
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	// Then: the engine answers and no model was built
	assert.Nil(t, a.Orchestrator)
	assert.Nil(t, a.Model)
	res, err := a.Engine.Retrieve(context.Background(), "seasonic 850 psu")
	require.NoError(t, err)
	require.NotEmpty(t, res.Candidates)
	assert.Equal(t, "PSU-850", res.Candidates[0].ProductID)
}

func TestOpen_FullPipelineWithModel(t *testing.T) {
	// Given: a scripted model for normalization and selection
	cfg := ingestedConfig(t)
	model := mock.New(
		"Seasonic Focus GX-850 power supply",
		`[{"input_query":"Seasonic Focus GX-850 power supply","selected_product_id":"PSU-850",
		   "selected_product_name":"Seasonic Focus GX-850","confidence":"high","reason":"exact"}]`)

	// When: opening and running
	a, err := Open(context.Background(), cfg, WithModel(model))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	report, err := a.Orchestrator.Run(context.Background(), "a seasonic 850")

	// Then: one matched decision comes back
	require.NoError(t, err)
	require.Len(t, report.Decisions, 1)
	assert.Equal(t, "PSU-850", *report.Decisions[0].SelectedProductID)
	assert.Equal(t, 2, model.CallCount())
}

func TestOpen_NotIngested(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Catalog.DataDir = t.TempDir()
	cfg.Embeddings.Provider = "static"

	_, err := Open(context.Background(), cfg, RetrievalOnly())

	require.Error(t, err)
	assert.Equal(t, cmerrors.ErrCodeFileNotFound, cmerrors.GetCode(err))
}
