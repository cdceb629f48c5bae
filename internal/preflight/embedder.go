package preflight

import (
	"context"
	"fmt"
	"time"

	"github.com/Aman-CERP/catalogmatch/internal/embed"
)

const embedProbeTimeout = 30 * time.Second

// CheckEmbedder embeds a probe text with the configured embedder and
// compares its dimension with the ingested one.
func (c *Checker) CheckEmbedder(ctx context.Context, state *CatalogState) CheckResult {
	result := CheckResult{Name: "embedder", Required: true}

	embedder := c.embedder
	if embedder == nil {
		e, err := embed.NewEmbedder(ctx, c.cfg.Embeddings)
		if err != nil {
			result.Status = StatusFail
			result.Message = fmt.Sprintf("%s: %v", c.cfg.Embeddings.Provider, err)
			return result
		}
		defer func() { _ = e.Close() }()
		embedder = e
	}

	probeCtx, cancel := context.WithTimeout(ctx, embedProbeTimeout)
	defer cancel()
	start := time.Now()
	vec, err := embedder.Embed(probeCtx, "preflight probe 850W")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s unreachable: %v", embedder.ModelName(), err)
		return result
	}
	latency := time.Since(start)

	if len(vec) != embedder.Dimensions() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s returned %d dims, reports %d", embedder.ModelName(), len(vec), embedder.Dimensions())
		return result
	}

	if state != nil && state.Dimensions != embedder.Dimensions() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s produces %d dims, catalog was ingested with %d (%s)",
			embedder.ModelName(), embedder.Dimensions(), state.Dimensions, state.Model)
		result.Details = "Re-run `catalogmatch ingest` or switch the embedder back"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dims, %s)", embedder.ModelName(), embedder.Dimensions(), latency.Round(time.Millisecond))
	if state != nil && state.Model != embedder.ModelName() {
		result.Status = StatusWarn
		result.Message += fmt.Sprintf(", catalog was ingested with %s", state.Model)
	}
	return result
}
