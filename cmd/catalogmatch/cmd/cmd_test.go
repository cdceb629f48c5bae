package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/catalogmatch/internal/mcpserver"
	"github.com/Aman-CERP/catalogmatch/internal/selection"
	"github.com/Aman-CERP/catalogmatch/internal/telemetry"
	"github.com/Aman-CERP/catalogmatch/internal/validation"
	"github.com/Aman-CERP/catalogmatch/pkg/version"
)

const testCatalog = `[
  {"product_id": "GPU-4080", "product_name": "NVIDIA GeForce RTX 4080", "category": "Graphics Card", "brand": "NVIDIA"},
  {"product_id": "PSU-850", "product_name": "Seasonic Focus GX-850", "category": "Power Supply", "brand": "Seasonic"},
  {"product_id": "SSD-980", "product_name": "Samsung 980 PRO 1TB", "category": "Storage", "brand": "Samsung"}
]`

// isolate points user config at an empty directory and clears credentials
// that would leak in from the environment.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("CATALOGMATCH_API_KEY", "")
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// ingested returns a project directory with the test catalog ingested.
func ingested(t *testing.T, projectYAML string) string {
	t.Helper()
	dir := t.TempDir()
	if projectYAML != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".catalogmatch.yaml"), []byte(projectYAML), 0o644))
	}
	catalogPath := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(catalogPath, []byte(testCatalog), 0o644))

	_, _, err := run(t, "--config", dir, "ingest", catalogPath, "--plain", "--workers", "2")
	require.NoError(t, err)
	return dir
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	// Given: a root command

	// When: executing with --help
	out, _, err := run(t, "--help")

	// Then: every subcommand is listed
	require.NoError(t, err)
	for _, sub := range []string{"ingest", "match", "search", "serve", "doctor", "pull", "stats", "validate", "config", "logs", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestVersionCmd(t *testing.T) {
	// Given/When: --short
	out, _, err := run(t, "version", "--short")

	// Then: only the version number is printed
	require.NoError(t, err)
	assert.Equal(t, version.Short()+"\n", out)

	// When: --json
	out, _, err = run(t, "version", "--json")

	// Then: the build info decodes
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info["version"])
}

func TestConfigInit_WritesTemplateAndBacksUp(t *testing.T) {
	// Given: an isolated user config directory
	isolate(t)
	path := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "catalogmatch", "config.yaml")

	// When: running config init
	out, _, err := run(t, "config", "init")

	// Then: the template is written
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	// When: running it again without --force
	out, _, err = run(t, "config", "init")

	// Then: nothing is overwritten
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	// When: forcing
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o600))
	_, _, err = run(t, "config", "init", "--force")

	// Then: the old file is kept as a backup
	require.NoError(t, err)
	matches, err := filepath.Glob(path + ".bak.*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	// Given: a project config holding an API key
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".catalogmatch.yaml"),
		[]byte("llm:\n  api_key: sk-very-secret\n"), 0o644))

	// When: showing the merged config
	out, _, err := run(t, "--config", dir, "config", "show")

	// Then: the key is masked
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-very-secret")
	assert.Contains(t, out, redacted)
	assert.Contains(t, out, "recall_size: 25")
}

func TestIngestThenSearch(t *testing.T) {
	// Given: an ingested catalog using the static embedder
	isolate(t)
	dir := ingested(t, "")

	// When: searching with JSON output
	out, _, err := run(t, "--config", dir, "search", "seasonic", "850w", "psu", "--format", "json")

	// Then: the Seasonic PSU ranks first
	require.NoError(t, err)
	var res mcpserver.SearchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "seasonic 850w psu", res.Query)
	assert.False(t, res.Degraded)
	require.NotEmpty(t, res.Candidates)
	assert.Equal(t, "PSU-850", res.Candidates[0].ProductID)
	assert.True(t, res.Candidates[0].NumericIdentityMatch)
}

func TestSearch_TextFormatAndLimit(t *testing.T) {
	// Given: an ingested catalog
	isolate(t)
	dir := ingested(t, "")

	// When: printing one candidate as a table
	out, _, err := run(t, "--config", dir, "search", "samsung 980 pro", "--limit", "1")

	// Then: only the top row is shown
	require.NoError(t, err)
	assert.Contains(t, out, "SSD-980")
	assert.NotContains(t, out, "GPU-4080")
}

func TestSearch_WithoutCatalogFails(t *testing.T) {
	// Given: a project with nothing ingested
	isolate(t)

	// When: searching
	_, _, err := run(t, "--config", t.TempDir(), "search", "anything")

	// Then: the error says the catalog is missing
	require.Error(t, err)
}

func TestSearch_InvalidFormat(t *testing.T) {
	isolate(t)
	_, _, err := run(t, "--config", t.TempDir(), "search", "x", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

// fakeOllama answers normalization prompts with one query and selection
// prompts with a decision for the Seasonic PSU.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp := "Seasonic Focus GX-850 power supply"
		if strings.Contains(req.Prompt, "Retrieved Candidates") {
			resp = `[{"input_query": "Seasonic Focus GX-850 power supply", "selected_product_id": "PSU-850",
			  "selected_product_name": "Seasonic Focus GX-850", "confidence": "high", "reason": "exact model"}]`
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"response": resp, "done": true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMatch_EndToEnd(t *testing.T) {
	// Given: an ingested catalog, a fake Ollama model and an input file
	isolate(t)
	srv := fakeOllama(t)
	dir := ingested(t, "llm:\n  provider: ollama\n  base_url: "+srv.URL+"\n  model: test-model\n")
	in := filepath.Join(dir, "input.txt")
	out := filepath.Join(dir, "output.txt")
	sidecar := filepath.Join(dir, "candidates.json")
	require.NoError(t, os.WriteFile(in, []byte("need a seasonic gx 850 psu"), 0o644))

	// When: running match
	stdout, _, err := run(t, "--config", dir, "match", "-i", in, "-o", out, "--candidates", sidecar)

	// Then: the decision is printed and written
	require.NoError(t, err)
	assert.Contains(t, stdout, "PSU-850")
	assert.Contains(t, stdout, "1/1 queries matched")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var decisions []selection.Decision
	require.NoError(t, json.Unmarshal(data, &decisions))
	require.Len(t, decisions, 1)
	require.NotNil(t, decisions[0].SelectedProductID)
	assert.Equal(t, "PSU-850", *decisions[0].SelectedProductID)
	assert.Equal(t, selection.ConfidenceHigh, decisions[0].Confidence)
	assert.FileExists(t, sidecar)

	// When: reading the run history
	stdout, _, err = run(t, "--config", dir, "stats", "--json")

	// Then: the run was recorded
	require.NoError(t, err)
	var snap telemetry.Snapshot
	require.NoError(t, json.Unmarshal([]byte(stdout), &snap))
	assert.Equal(t, int64(1), snap.Runs)
	assert.Equal(t, int64(1), snap.Matched)
}

func TestStats_NoHistory(t *testing.T) {
	isolate(t)
	out, _, err := run(t, "--config", t.TempDir(), "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "No match runs recorded yet")
}

func TestMatch_MissingInputFile(t *testing.T) {
	// Given: an ingested catalog and no input file
	isolate(t)
	srv := fakeOllama(t)
	dir := ingested(t, "llm:\n  provider: ollama\n  base_url: "+srv.URL+"\n  model: test-model\n")
	out := filepath.Join(dir, "output.txt")

	// When: running match
	_, _, err := run(t, "--config", dir, "match", "-i", filepath.Join(dir, "missing.txt"), "-o", out)

	// Then: it fails before writing output
	require.Error(t, err)
	assert.NoFileExists(t, out)
}

func TestDoctor_RetrievalOnlyJSON(t *testing.T) {
	// Given: an ingested catalog
	isolate(t)
	dir := ingested(t, "")

	// When: running doctor without the model checks
	out, _, _ := run(t, "--config", dir, "doctor", "--retrieval-only", "--json")

	// Then: the catalog and embedder checks pass and no model check runs
	var report doctorReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	byName := map[string]string{}
	for _, c := range report.Checks {
		byName[c.Name] = c.Status.String()
	}
	assert.Equal(t, "PASS", byName["catalog"])
	assert.Equal(t, "PASS", byName["embedder"])
	assert.NotContains(t, byName, "llm")
}

func TestDoctor_MissingCatalogFails(t *testing.T) {
	isolate(t)
	out, _, err := run(t, "--config", t.TempDir(), "doctor", "--retrieval-only")
	require.ErrorIs(t, err, errChecksFailed)
	assert.Contains(t, out, "Status: FAILED")
}

func TestLogsCmd_FiltersByLevel(t *testing.T) {
	// Given: a JSON log file with info and warn lines
	path := filepath.Join(t.TempDir(), "catalogmatch.log")
	lines := `{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"batch_validated"}
{"time":"2026-01-02T10:00:01Z","level":"WARN","msg":"retrieval_degraded","query":"rtx 4080"}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	// When: viewing warnings only
	out, stderr, err := run(t, "logs", "--file", path, "--level", "warn", "--no-color")

	// Then: only the warning is printed
	require.NoError(t, err)
	assert.Contains(t, stderr, path)
	assert.Contains(t, out, "retrieval_degraded")
	assert.NotContains(t, out, "batch_validated")
}

func TestServe_InvalidTransport(t *testing.T) {
	isolate(t)
	_, _, err := run(t, "--config", t.TempDir(), "serve", "--transport", "grpc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid transport")
}

func TestValidate_GoldenSet(t *testing.T) {
	// Given: an ingested catalog and a golden set it satisfies
	isolate(t)
	dir := ingested(t, "")
	queries := filepath.Join(dir, "queries.yaml")
	require.NoError(t, os.WriteFile(queries, []byte(`tier1:
  - id: T1-PSU
    query: seasonic focus gx 850
    expected: [PSU-850]
negative:
  - id: N-FLUX
    query: flux capacitor
`), 0o644))

	// When: validating
	out, _, err := run(t, "--config", dir, "validate", queries, "--json")

	// Then: every query passes
	require.NoError(t, err)
	var res validation.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 1, res.Tier1Pass)
	assert.Equal(t, 1, res.NegPass)
	assert.InDelta(t, 1.0, res.MRR, 1e-9)
}

func TestPull_NothingConfigured(t *testing.T) {
	isolate(t)
	stdout, _, err := run(t, "--config", t.TempDir(), "pull")

	require.NoError(t, err)
	assert.Contains(t, stdout, "No Ollama models configured")
}

func TestPull_PullsMissingModel(t *testing.T) {
	// Given: an Ollama server without the configured embedding model
	isolate(t)
	var pulled string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		case "/api/pull":
			var req struct {
				Name string `json:"name"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			pulled = req.Name
			_, _ = w.Write([]byte("{\"status\":\"pulling manifest\"}\n{\"status\":\"success\"}\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	project := "embeddings:\n  provider: ollama\n  host: " + srv.URL + "\n  model: nomic-embed-text\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".catalogmatch.yaml"), []byte(project), 0o644))

	// When: pulling retrieval models
	stdout, stderr, err := run(t, "--config", dir, "pull", "--retrieval-only")

	// Then: the model was requested and progress went to stderr
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", pulled)
	assert.Contains(t, stdout, "nomic-embed-text ready")
	assert.Contains(t, stderr, "pulling manifest")
}
