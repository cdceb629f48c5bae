package preflight

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/catalogmatch/internal/config"
	"github.com/Aman-CERP/catalogmatch/internal/embed"
	"github.com/Aman-CERP/catalogmatch/internal/ingest"
)

const catalogJSON = `[
  {"product_id": "GPU-4080", "product_name": "NVIDIA GeForce RTX 4080", "category": "Graphics Card"},
  {"product_id": "PSU-850", "product_name": "Seasonic Focus GX-850", "category": "Power Supply"}
]`

// otherDimsEmbedder reports a different dimension than the static one.
type otherDimsEmbedder struct{ embed.Embedder }

func (otherDimsEmbedder) Dimensions() int   { return 768 }
func (otherDimsEmbedder) ModelName() string { return "nomic-embed-text" }
func (otherDimsEmbedder) Embed(context.Context, string) ([]float32, error) {
	return make([]float32, 768), nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Catalog.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.LLM.APIKey = "test-key"
	return cfg
}

func ingestCatalog(t *testing.T, dataDir string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(catalogJSON), 0o644))

	p, err := ingest.NewPipeline(embed.NewStaticEmbedder(), ingest.WithPoolSize(1))
	require.NoError(t, err)
	defer p.Release()
	_, err = p.Run(context.Background(), path, dataDir)
	require.NoError(t, err)
}

func byName(results []CheckResult) map[string]CheckResult {
	out := make(map[string]CheckResult, len(results))
	for _, r := range results {
		out[r.Name] = r
	}
	return out
}

func TestCheckStatus_String(t *testing.T) {
	assert.Equal(t, "PASS", StatusPass.String())
	assert.Equal(t, "WARN", StatusWarn.String())
	assert.Equal(t, "FAIL", StatusFail.String())
	assert.Equal(t, "UNKNOWN", CheckStatus(99).String())
}

func TestCheckResult_IsCritical(t *testing.T) {
	assert.True(t, CheckResult{Required: true, Status: StatusFail}.IsCritical())
	assert.False(t, CheckResult{Required: false, Status: StatusFail}.IsCritical())
	assert.False(t, CheckResult{Required: true, Status: StatusWarn}.IsCritical())
}

func TestRunAll_IngestedCatalog_Ready(t *testing.T) {
	// Given: an ingested catalog and an API key
	cfg := testConfig(t)
	ingestCatalog(t, cfg.Catalog.DataDir)
	checker := New(cfg, WithEmbedder(embed.NewStaticEmbedder()), WithOutput(&bytes.Buffer{}))

	// When: running all checks
	results := checker.RunAll(context.Background())

	// Then: nothing critical fails and the catalog is described
	assert.False(t, checker.HasCriticalFailures(results), "%+v", results)
	checks := byName(results)
	assert.Equal(t, StatusPass, checks["catalog"].Status)
	assert.Contains(t, checks["catalog"].Message, "2 entries")
	assert.Equal(t, StatusPass, checks["embedder"].Status)
	assert.Equal(t, StatusPass, checks["llm"].Status)
	assert.Equal(t, StatusPass, checks["cache"].Status)
}

func TestRunAll_NotIngested_Fails(t *testing.T) {
	// Given: an empty data dir
	cfg := testConfig(t)
	checker := New(cfg, WithEmbedder(embed.NewStaticEmbedder()))

	// When: running all checks
	results := checker.RunAll(context.Background())

	// Then: the catalog check is critical
	assert.True(t, checker.HasCriticalFailures(results))
	assert.Equal(t, StatusFail, byName(results)["catalog"].Status)
	assert.Equal(t, "failed", checker.SummaryStatus(results))
	_, err := os.Stat(filepath.Join(cfg.Catalog.DataDir, ingest.CatalogDBName))
	assert.True(t, os.IsNotExist(err), "preflight must not create the database")
}

func TestCheckEmbedder_DimensionMismatch(t *testing.T) {
	cfg := testConfig(t)
	ingestCatalog(t, cfg.Catalog.DataDir)
	checker := New(cfg, WithEmbedder(otherDimsEmbedder{}))

	results := byName(checker.RunAll(context.Background()))

	assert.Equal(t, StatusFail, results["embedder"].Status)
	assert.Contains(t, results["embedder"].Message, "768")
}

func TestCheckLLMCredentials(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		apiKey   string
		baseURL  string
		want     CheckStatus
	}{
		{"openai with key", "openai", "k", config.DefaultGroqBaseURL, StatusPass},
		{"openai without key", "openai", "", config.DefaultGroqBaseURL, StatusFail},
		{"ollama needs no key", "ollama", "", "http://localhost:11434", StatusPass},
		{"router without url", "router", "", "", StatusFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.LLM.Provider = tt.provider
			cfg.LLM.APIKey = tt.apiKey
			cfg.LLM.BaseURL = tt.baseURL

			assert.Equal(t, tt.want, New(cfg).CheckLLMCredentials().Status)
		})
	}
}

func TestRunAll_RetrievalOnly_SkipsModelChecks(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = ""
	ingestCatalog(t, cfg.Catalog.DataDir)
	checker := New(cfg, WithEmbedder(embed.NewStaticEmbedder()), WithRetrievalOnly(true))

	results := checker.RunAll(context.Background())

	assert.False(t, checker.HasCriticalFailures(results))
	assert.NotContains(t, byName(results), "llm")
}

func TestCheckConfig_Invalid(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retrieval.SemanticWeight = 0.9

	result := New(cfg).CheckConfig()

	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "sum to 1.0")
}

func TestCheckWritePermissions_MissingDirUsesParent(t *testing.T) {
	cfg := testConfig(t)

	result := New(cfg).CheckWritePermissions(filepath.Join(cfg.Catalog.DataDir, "deep", "nested"))

	assert.Equal(t, StatusPass, result.Status)
}

func TestSummaryStatus_WarningsOnly(t *testing.T) {
	checker := New(testConfig(t))
	results := []CheckResult{
		{Name: "a", Status: StatusPass, Required: true},
		{Name: "b", Status: StatusWarn},
	}

	assert.Equal(t, "ready_with_warnings", checker.SummaryStatus(results))
}

func TestPrintResults(t *testing.T) {
	buf := &bytes.Buffer{}
	checker := New(testConfig(t), WithOutput(buf), WithVerbose(true))

	checker.PrintResults([]CheckResult{
		{Name: "catalog", Status: StatusFail, Message: "not ingested", Details: "run ingest", Required: true},
		{Name: "file_descriptors", Status: StatusWarn, Message: "128"},
	})

	out := buf.String()
	assert.Contains(t, out, "[FAIL] catalog: not ingested")
	assert.Contains(t, out, "run ingest")
	assert.Contains(t, out, "Status: FAILED")
	assert.Contains(t, out, "1 error(s)")
	assert.Contains(t, out, "1 warning(s)")
}

func TestCheckResult_JSONStatusName(t *testing.T) {
	data, err := json.Marshal(CheckResult{Name: "x", Status: StatusWarn})
	require.NoError(t, err)

	assert.Contains(t, string(data), `"status":"WARN"`)
}
