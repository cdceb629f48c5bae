package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete catalogmatch configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Catalog    CatalogConfig    `yaml:"catalog" json:"catalog"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Selection  SelectionConfig  `yaml:"selection" json:"selection"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// CatalogConfig locates the ingested catalog snapshot.
type CatalogConfig struct {
	// DataDir holds catalog.db and vectors.hnsw. Relative paths resolve
	// against the project directory passed to Load.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// RetrievalConfig configures candidate recall and fusion.
// Weights are configurable via:
//  1. User config (~/.config/catalogmatch/config.yaml)
//  2. Project config (.catalogmatch.yaml)
//  3. Env vars (CATALOGMATCH_SEMANTIC_WEIGHT, CATALOGMATCH_LEXICAL_WEIGHT, CATALOGMATCH_NUMERIC_WEIGHT)
type RetrievalConfig struct {
	// RecallSize is how many nearest neighbours the vector source returns.
	RecallSize int `yaml:"recall_size" json:"recall_size"`

	// TopK is how many fused candidates each query keeps.
	TopK int `yaml:"top_k" json:"top_k"`

	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	LexicalWeight  float64 `yaml:"lexical_weight" json:"lexical_weight"`
	NumericWeight  float64 `yaml:"numeric_weight" json:"numeric_weight"`

	// LexicalBackend selects the lexical ranker: "bleve" or "sqlite".
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`

	// VectorTimeout bounds a single vector recall (e.g. "30s").
	VectorTimeout string `yaml:"vector_timeout" json:"vector_timeout"`

	// Parallelism caps concurrent per-query retrievals.
	Parallelism int `yaml:"parallelism" json:"parallelism"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "static", "ollama" or "openai".
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Host       string `yaml:"host" json:"host"`
	APIKey     string `yaml:"api_key" json:"-"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	// CacheSize is the query embedding LRU size; negative disables it.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// LLMConfig configures the language model used for normalization and selection.
type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint), "ollama" or "router".
	Provider    string  `yaml:"provider" json:"provider"`
	BaseURL     string  `yaml:"base_url" json:"base_url"`
	Model       string  `yaml:"model" json:"model"`
	APIKey      string  `yaml:"api_key" json:"-"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	Timeout     string  `yaml:"timeout" json:"timeout"`
	MaxRetries  int     `yaml:"max_retries" json:"max_retries"`
}

// CacheConfig configures the language model response cache.
type CacheConfig struct {
	// Backend is "none", "memory" or "redis".
	Backend       string `yaml:"backend" json:"backend"`
	Size          int    `yaml:"size" json:"size"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"-"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	TTL           string `yaml:"ttl" json:"ttl"`
}

// SelectionConfig configures the final selection stage.
type SelectionConfig struct {
	// StrictMembership rejects decisions that select a product outside
	// the query's own candidate list.
	StrictMembership bool `yaml:"strict_membership" json:"strict_membership"`
	// DescriptionChars truncates candidate descriptions in the prompt.
	DescriptionChars int `yaml:"description_chars" json:"description_chars"`
}

// ServerConfig configures the MCP and HTTP servers.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	Addr      string `yaml:"addr" json:"addr"`
	APIKey    string `yaml:"api_key" json:"-"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

const (
	// DefaultGroqBaseURL is the OpenAI-compatible Groq endpoint.
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	// DefaultLLMModel is the default selection and normalization model.
	DefaultLLMModel = "openai/gpt-oss-120b"
)

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Catalog: CatalogConfig{
			DataDir: ".catalogmatch",
		},
		Retrieval: RetrievalConfig{
			RecallSize:     25,
			TopK:           10,
			SemanticWeight: 0.5,
			LexicalWeight:  0.3,
			NumericWeight:  0.2,
			LexicalBackend: "bleve",
			VectorTimeout:  "30s",
			Parallelism:    runtime.NumCPU(),
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "",
			Host:       "",
			Dimensions: 0, // Provider default
			BatchSize:  32,
			CacheSize:  1000,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			BaseURL:     DefaultGroqBaseURL,
			Model:       DefaultLLMModel,
			Temperature: 0,
			MaxTokens:   1000,
			Timeout:     "60s",
			MaxRetries:  2,
		},
		Cache: CacheConfig{
			Backend:   "none",
			Size:      512,
			RedisAddr: "localhost:6379",
			TTL:       "24h",
		},
		Selection: SelectionConfig{
			StrictMembership: false,
			DescriptionChars: 300,
		},
		Server: ServerConfig{
			Transport: "stdio",
			Addr:      ":8080",
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file.
//   - $XDG_CONFIG_HOME/catalogmatch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/catalogmatch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "catalogmatch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "catalogmatch", "config.yaml")
	}
	return filepath.Join(home, ".config", "catalogmatch", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for the project directory dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/catalogmatch/config.yaml)
//  3. Project config (.catalogmatch.yaml in dir)
//  4. dir/.env (never overrides variables already set)
//  5. Environment variables (CATALOGMATCH_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if envPath := filepath.Join(dir, ".env"); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	cfg.applyEnvOverrides()

	if cfg.Catalog.DataDir != "" && !filepath.IsAbs(cfg.Catalog.DataDir) {
		cfg.Catalog.DataDir = filepath.Join(dir, cfg.Catalog.DataDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads .catalogmatch.yaml or .catalogmatch.yml from dir.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".catalogmatch.yaml", ".catalogmatch.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML decodes path over the current values. Keys absent from the
// file keep their current value.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies CATALOGMATCH_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	envFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 && f <= 1 {
				*dst = f
			}
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	envString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envString("CATALOGMATCH_DATA_DIR", &c.Catalog.DataDir)

	envFloat("CATALOGMATCH_SEMANTIC_WEIGHT", &c.Retrieval.SemanticWeight)
	envFloat("CATALOGMATCH_LEXICAL_WEIGHT", &c.Retrieval.LexicalWeight)
	envFloat("CATALOGMATCH_NUMERIC_WEIGHT", &c.Retrieval.NumericWeight)
	envInt("CATALOGMATCH_RECALL_SIZE", &c.Retrieval.RecallSize)
	envInt("CATALOGMATCH_TOP_K", &c.Retrieval.TopK)
	envString("CATALOGMATCH_LEXICAL_BACKEND", &c.Retrieval.LexicalBackend)

	envString("CATALOGMATCH_EMBEDDINGS_PROVIDER", &c.Embeddings.Provider)
	envString("CATALOGMATCH_EMBEDDINGS_MODEL", &c.Embeddings.Model)
	envString("CATALOGMATCH_EMBEDDINGS_HOST", &c.Embeddings.Host)
	envString("CATALOGMATCH_EMBEDDINGS_API_KEY", &c.Embeddings.APIKey)
	if c.Embeddings.APIKey == "" {
		c.Embeddings.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	envString("CATALOGMATCH_LLM_PROVIDER", &c.LLM.Provider)
	envString("CATALOGMATCH_LLM_BASE_URL", &c.LLM.BaseURL)
	envString("CATALOGMATCH_LLM_MODEL", &c.LLM.Model)
	envString("CATALOGMATCH_LLM_TIMEOUT", &c.LLM.Timeout)
	envString("CATALOGMATCH_LLM_API_KEY", &c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("GROQ_API_KEY")
	}

	envString("CATALOGMATCH_CACHE_BACKEND", &c.Cache.Backend)
	envString("CATALOGMATCH_REDIS_ADDR", &c.Cache.RedisAddr)
	envString("CATALOGMATCH_REDIS_PASSWORD", &c.Cache.RedisPassword)

	if v := os.Getenv("CATALOGMATCH_STRICT_MEMBERSHIP"); v != "" {
		c.Selection.StrictMembership = strings.EqualFold(v, "true") || v == "1"
	}

	envString("CATALOGMATCH_TRANSPORT", &c.Server.Transport)
	envString("CATALOGMATCH_ADDR", &c.Server.Addr)
	envString("CATALOGMATCH_API_KEY", &c.Server.APIKey)
	envString("CATALOGMATCH_LOG_LEVEL", &c.Server.LogLevel)
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	r := c.Retrieval
	for name, w := range map[string]float64{
		"semantic_weight": r.SemanticWeight,
		"lexical_weight":  r.LexicalWeight,
		"numeric_weight":  r.NumericWeight,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("retrieval.%s must be between 0 and 1, got %f", name, w)
		}
	}
	if sum := r.SemanticWeight + r.LexicalWeight + r.NumericWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("retrieval weights must sum to 1.0, got %.2f", sum)
	}
	if r.RecallSize <= 0 {
		return fmt.Errorf("retrieval.recall_size must be positive, got %d", r.RecallSize)
	}
	if r.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", r.TopK)
	}
	if r.Parallelism <= 0 {
		return fmt.Errorf("retrieval.parallelism must be positive, got %d", r.Parallelism)
	}
	if err := oneOf("retrieval.lexical_backend", r.LexicalBackend, "bleve", "sqlite"); err != nil {
		return err
	}
	if err := validDuration("retrieval.vector_timeout", r.VectorTimeout); err != nil {
		return err
	}

	if err := oneOf("embeddings.provider", c.Embeddings.Provider, "static", "ollama", "openai"); err != nil {
		return err
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}

	if err := oneOf("llm.provider", c.LLM.Provider, "openai", "ollama", "router"); err != nil {
		return err
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must be non-negative, got %d", c.LLM.MaxRetries)
	}
	if err := validDuration("llm.timeout", c.LLM.Timeout); err != nil {
		return err
	}

	if err := oneOf("cache.backend", c.Cache.Backend, "none", "memory", "redis"); err != nil {
		return err
	}
	if err := validDuration("cache.ttl", c.Cache.TTL); err != nil {
		return err
	}

	if c.Selection.DescriptionChars <= 0 {
		return fmt.Errorf("selection.description_chars must be positive, got %d", c.Selection.DescriptionChars)
	}

	if err := oneOf("server.transport", c.Server.Transport, "stdio", "http"); err != nil {
		return err
	}
	return oneOf("server.log_level", c.Server.LogLevel, "debug", "info", "warn", "error")
}

// VectorTimeout returns the parsed retrieval.vector_timeout.
func (c *Config) VectorTimeout() time.Duration {
	return parseDuration(c.Retrieval.VectorTimeout, 30*time.Second)
}

// LLMTimeout returns the parsed llm.timeout.
func (c *Config) LLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// CacheTTL returns the parsed cache.ttl.
func (c *Config) CacheTTL() time.Duration {
	return parseDuration(c.Cache.TTL, 24*time.Hour)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value)
}

func validDuration(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("%s is not a valid duration: %q", field, value)
	}
	return nil
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return fallback
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
