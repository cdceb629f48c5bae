package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
	"github.com/Aman-CERP/catalogmatch/internal/matcher"
	"github.com/Aman-CERP/catalogmatch/internal/retrieval"
	"github.com/Aman-CERP/catalogmatch/internal/selection"
	"github.com/Aman-CERP/catalogmatch/pkg/version"
)

// ServerName is reported in the MCP handshake.
const ServerName = "catalogmatch"

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// Matcher runs the full batch pipeline.
type Matcher interface {
	Run(ctx context.Context, raw string) (*matcher.Report, error)
}

// Retriever returns fused candidates for one query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (*retrieval.Result, error)
}

// Server is the MCP server. It bridges MCP clients with the matcher and
// the retrieval engine.
type Server struct {
	mcp     *mcp.Server
	matcher Matcher
	engine  Retriever
	logger  *slog.Logger
}

// MatchInput is the input schema of match_products.
type MatchInput struct {
	Text string `json:"text" jsonschema:"free-form request naming one or more products"`
}

// MatchOutput is the output schema of match_products.
type MatchOutput struct {
	RunID     string                `json:"run_id" jsonschema:"identifier of this run, also sent as trace id"`
	Decisions []selection.Decision  `json:"decisions" jsonschema:"one decision per normalized query, in order"`
	Batch     []selection.BatchItem `json:"batch" jsonschema:"the candidates each decision was chosen from"`
}

// SearchInput is the input schema of search_catalog.
type SearchInput struct {
	Query string `json:"query" jsonschema:"a single product query"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of candidates, default 10"`
}

// SearchOutput is the output schema of search_catalog.
type SearchOutput struct {
	Query      string            `json:"query"`
	Degraded   bool              `json:"degraded" jsonschema:"true when vector recall was unavailable and results are lexical only"`
	Candidates []CandidateOutput `json:"candidates"`
}

// CandidateOutput is one fused candidate.
type CandidateOutput struct {
	ProductID            string  `json:"product_id"`
	ProductName          string  `json:"product_name"`
	Category             string  `json:"category"`
	HybridScore          float64 `json:"hybrid_score" jsonschema:"blended score, higher is better"`
	SemanticDistance     float64 `json:"semantic_distance"`
	LexicalScore         float64 `json:"lexical_score"`
	NumericIdentityMatch bool    `json:"numeric_identity_match" jsonschema:"query and product share a digit sequence"`
}

// NewServer creates the MCP server. m may be nil, in which case only
// search_catalog is registered.
func NewServer(engine Retriever, m Matcher) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("mcpserver: %w", cmerrors.ErrNilDependency)
	}

	s := &Server{
		matcher: m,
		engine:  engine,
		logger:  slog.Default().With("component", "mcpserver"),
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version.Version}, nil)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Tools returns the names of the registered tools.
func (s *Server) Tools() []string {
	if s.matcher == nil {
		return []string{"search_catalog"}
	}
	return []string{"match_products", "search_catalog"}
}

func (s *Server) registerTools() {
	if s.matcher != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name: "match_products",
			Description: "Match a free-form purchase request against the product catalog. " +
				"The request is split into one query per product, each query is matched against catalog candidates, " +
				"and exactly one decision is returned per query: a catalog product or null when nothing fits.",
		}, s.handleMatch)
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "search_catalog",
		Description: "Rank catalog products for a single query using hybrid semantic, keyword and model-number scoring. " +
			"Use this to inspect candidates without asking the language model to choose.",
	}, s.handleSearch)

	s.logger.Debug("mcp_tools_registered", slog.Any("tools", s.Tools()))
}

func (s *Server) handleMatch(ctx context.Context, _ *mcp.CallToolRequest, input MatchInput) (
	*mcp.CallToolResult,
	MatchOutput,
	error,
) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, MatchOutput{}, NewInvalidParamsError("text is required")
	}

	start := time.Now()
	report, err := s.matcher.Run(ctx, input.Text)
	if err != nil {
		s.logger.Error("match_products_failed",
			append([]any{slog.Duration("duration", time.Since(start))}, cmerrors.LogAttrs(err)...)...)
		return nil, MatchOutput{}, MapError(err)
	}

	s.logger.Info("match_products_completed",
		slog.String("run_id", report.RunID),
		slog.Int("decisions", len(report.Decisions)),
		slog.Duration("duration", time.Since(start)))
	return nil, MatchOutput{RunID: report.RunID, Decisions: report.Decisions, Batch: report.Batch}, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}
	limit := clampLimit(input.Limit, defaultSearchLimit, 1, maxSearchLimit)

	requestID := uuid.NewString()[:8]
	start := time.Now()
	res, err := s.engine.Retrieve(ctx, query)
	if err != nil {
		s.logger.Error("search_catalog_failed",
			append([]any{slog.String("request_id", requestID)}, cmerrors.LogAttrs(err)...)...)
		return nil, SearchOutput{}, MapError(err)
	}

	out := ToSearchOutput(res, limit)
	s.logger.Info("search_catalog_completed",
		slog.String("request_id", requestID),
		slog.Int("candidates", len(out.Candidates)),
		slog.Bool("degraded", out.Degraded),
		slog.Duration("duration", time.Since(start)))
	return nil, out, nil
}

// ToSearchOutput converts a retrieval result, keeping at most limit candidates.
func ToSearchOutput(res *retrieval.Result, limit int) SearchOutput {
	cands := res.Candidates
	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}

	out := SearchOutput{
		Query:      res.Query,
		Degraded:   res.Degraded(),
		Candidates: make([]CandidateOutput, 0, len(cands)),
	}
	for _, c := range cands {
		out.Candidates = append(out.Candidates, CandidateOutput{
			ProductID:            c.ProductID,
			ProductName:          c.ProductName,
			Category:             c.Category,
			HybridScore:          c.HybridScore,
			SemanticDistance:     c.SemanticDistance,
			LexicalScore:         c.LexicalScore,
			NumericIdentityMatch: c.NumericIdentityMatch == 1,
		})
	}
	return out
}

// Serve runs the server over stdio until ctx is done. Stdout carries the
// JSON-RPC stream, so nothing else may write to it.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

func clampLimit(limit, def, lo, hi int) int {
	if limit <= 0 {
		return def
	}
	if limit < lo {
		return lo
	}
	if limit > hi {
		return hi
	}
	return limit
}
