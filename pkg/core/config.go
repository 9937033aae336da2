package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/powerbrain/brainmem-go/pkg/idgen"
	"github.com/powerbrain/brainmem-go/pkg/intelligence"
	"github.com/powerbrain/brainmem-go/pkg/model"
)

// Config contains the complete configuration for a brainmem client.
//
// It includes settings for:
//   - Embedding provider (for vector generation)
//   - Vector store (for memory persistence)
//   - LLM provider (optional, for memory extraction)
//   - Intelligence weights and thresholds
//
// Example:
//
//	config := core.DefaultConfig()
//	config.Embedder = core.EmbedderConfig{
//	    Provider:   "ollama",
//	    Model:      "nomic-embed-text",
//	    Dimensions: 768,
//	}
//	config.VectorStore = core.VectorStoreConfig{
//	    Provider: "sqlite",
//	    Config: map[string]interface{}{
//	        "db_path": "./memories.db",
//	    },
//	}
type Config struct {
	// LLM contains LLM provider configuration. An empty provider disables
	// LLM features.
	LLM LLMConfig `json:"llm"`

	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder"`

	// VectorStore contains vector store configuration.
	VectorStore VectorStoreConfig `json:"vector_store"`

	// Intelligence contains scoring, ranking and deduplication settings.
	Intelligence IntelligenceConfig `json:"intelligence"`

	// Cache configures the embedding cache.
	Cache CacheConfig `json:"cache"`

	// IDGenerator selects how memory ids are generated.
	IDGenerator IDGeneratorConfig `json:"id_generator"`

	// Logging configures the client logger.
	Logging LoggingConfig `json:"logging"`
}

// LLMConfig contains configuration for the LLM provider.
//
// Supported providers: openai, deepseek, qwen, anthropic, ollama
type LLMConfig struct {
	// Provider is the LLM provider name. Empty disables the LLM.
	Provider string `json:"provider"`

	// APIKey is the API key for the LLM provider.
	APIKey string `json:"api_key"`

	// Model is the model name to use.
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional, uses provider default if empty).
	BaseURL string `json:"base_url,omitempty"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: hashing (offline), openai, qwen, ollama
type EmbedderConfig struct {
	// Provider is the embedding provider name.
	Provider string `json:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key"`

	// Model is the embedding model name.
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional, uses provider default if empty).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the dimension of the embedding vectors.
	Dimensions int `json:"dimensions,omitempty"`
}

// VectorStoreConfig contains configuration for the vector store.
//
// Supported providers: sqlite, chromem, postgres, oceanbase
type VectorStoreConfig struct {
	// Provider is the vector store provider name.
	Provider string `json:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path, collection_name, embedding_model_dims, driver
	// For chromem: path, compress, collection_name, embedding_model_dims
	// For OceanBase: host, port, user, password, db_name, collection_name, embedding_model_dims
	// For PostgreSQL: host, port, user, password, db_name, collection_name, embedding_model_dims, ssl_mode
	Config map[string]interface{} `json:"config"`
}

// IntelligenceConfig contains the scoring, ranking and deduplication settings.
type IntelligenceConfig struct {
	// DecayRate is the exponential decay constant per day. Default 0.01.
	DecayRate float64 `json:"decay_rate"`

	// SemanticWeight and EpisodicWeight multiply importance by memory type.
	SemanticWeight float64 `json:"semantic_weight"`
	EpisodicWeight float64 `json:"episodic_weight"`

	// MinContentLength is the length below which content is down-weighted.
	MinContentLength int `json:"min_content_length"`

	// Ranking weights. They should sum to 1.0.
	SimilarityWeight float64 `json:"similarity_weight"`
	ImportanceWeight float64 `json:"importance_weight"`
	RecencyWeight    float64 `json:"recency_weight"`
	AccessWeight     float64 `json:"access_weight"`

	// DedupThreshold is the similarity above which memories are merged.
	DedupThreshold float64 `json:"dedup_threshold"`

	// DedupCandidates is how many neighbours are checked for duplicates.
	DedupCandidates int `json:"dedup_candidates"`

	// ImportanceStep is added to the canonical importance per merged duplicate.
	ImportanceStep float64 `json:"importance_step"`

	// SimilarityThreshold is the default min_similarity of retrieval.
	SimilarityThreshold float64 `json:"similarity_threshold"`

	// DefaultTopK is the default number of retrieved memories.
	DefaultTopK int `json:"default_top_k"`
}

// CacheConfig configures the in-process embedding cache.
type CacheConfig struct {
	Enabled    bool  `json:"enabled"`
	MaxEntries int64 `json:"max_entries"`
}

// IDGeneratorConfig selects the memory id scheme.
type IDGeneratorConfig struct {
	// Kind is "snowflake" or "uuid".
	Kind string `json:"kind"`

	// Node is the snowflake node number (0-1023).
	Node int64 `json:"node"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level"`

	// Format is json or console.
	Format string `json:"format"`
}

// DefaultConfig returns a configuration that runs fully offline: hashing
// embeddings, a local SQLite file and no LLM.
func DefaultConfig() *Config {
	return &Config{
		Embedder: EmbedderConfig{
			Provider:   "hashing",
			Dimensions: 256,
		},
		VectorStore: VectorStoreConfig{
			Provider: "sqlite",
			Config: map[string]interface{}{
				"db_path":         "./brainmem.db",
				"collection_name": "memories",
			},
		},
		Intelligence: DefaultIntelligenceConfig(),
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 10000,
		},
		IDGenerator: IDGeneratorConfig{
			Kind: string(idgen.KindSnowflake),
			Node: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultIntelligenceConfig returns the default intelligence settings.
func DefaultIntelligenceConfig() IntelligenceConfig {
	d := intelligence.DefaultConfig()
	return IntelligenceConfig{
		DecayRate:           d.Decay.DecayRate,
		SemanticWeight:      d.Scorer.SemanticWeight,
		EpisodicWeight:      d.Scorer.EpisodicWeight,
		MinContentLength:    d.Scorer.MinContentLength,
		SimilarityWeight:    d.Weights.Similarity,
		ImportanceWeight:    d.Weights.Importance,
		RecencyWeight:       d.Weights.Recency,
		AccessWeight:        d.Weights.Access,
		DedupThreshold:      d.Dedup.Threshold,
		DedupCandidates:     d.Dedup.CandidateLimit,
		ImportanceStep:      d.Dedup.ImportanceStep,
		SimilarityThreshold: model.DefaultMinSimilarity,
		DefaultTopK:         model.DefaultTopK,
	}
}

// ToIntelligence converts the settings into the intelligence package config.
func (c IntelligenceConfig) ToIntelligence() intelligence.Config {
	return intelligence.Config{
		Scorer: intelligence.ScorerConfig{
			SemanticWeight:   c.SemanticWeight,
			EpisodicWeight:   c.EpisodicWeight,
			MinContentLength: c.MinContentLength,
		},
		Decay: intelligence.DecayConfig{DecayRate: c.DecayRate},
		Weights: intelligence.Weights{
			Similarity: c.SimilarityWeight,
			Importance: c.ImportanceWeight,
			Recency:    c.RecencyWeight,
			Access:     c.AccessWeight,
		},
		Dedup: intelligence.DedupConfig{
			Threshold:      c.DedupThreshold,
			CandidateLimit: c.DedupCandidates,
			ImportanceStep: c.ImportanceStep,
		},
	}
}

// Validate checks thresholds and bounds. An unnormalized weight sum is not an
// error; the ranker warns about it instead.
func (c IntelligenceConfig) Validate() error {
	if c.DecayRate < 0 {
		return invalidConfig("decay rate %v is negative", c.DecayRate)
	}
	if c.DedupThreshold < 0 || c.DedupThreshold > 1 {
		return invalidConfig("dedup threshold %v outside [0,1]", c.DedupThreshold)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return invalidConfig("similarity threshold %v outside [0,1]", c.SimilarityThreshold)
	}
	if c.DefaultTopK < 0 || c.DefaultTopK > model.MaxTopK {
		return invalidConfig("default top_k %d outside [1,%d]", c.DefaultTopK, model.MaxTopK)
	}
	if c.ImportanceStep < 0 {
		return invalidConfig("importance step %v is negative", c.ImportanceStep)
	}
	return nil
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Overlays the variables on DefaultConfig
//
// Supported environment variables:
//   - DATABASE_PROVIDER (sqlite, chromem, postgres, oceanbase)
//   - SQLITE_PATH, SQLITE_COLLECTION, SQLITE_DRIVER
//   - CHROMEM_PATH, CHROMEM_COLLECTION, CHROMEM_COMPRESS
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, POSTGRES_DATABASE, POSTGRES_COLLECTION, POSTGRES_SSLMODE
//   - OCEANBASE_HOST, OCEANBASE_PORT, OCEANBASE_USER, OCEANBASE_PASSWORD, OCEANBASE_DATABASE, OCEANBASE_COLLECTION
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL, EMBEDDING_BASE_URL, EMBEDDING_DIMS
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - OLLAMA_BASE_URL, OLLAMA_MODEL
//   - DECAY_RATE, SIMILARITY_THRESHOLD, DEDUP_THRESHOLD, DEFAULT_TOP_K
//   - RANK_WEIGHT_SIMILARITY, RANK_WEIGHT_IMPORTANCE, RANK_WEIGHT_RECENCY, RANK_WEIGHT_ACCESS
//   - EMBEDDING_CACHE_ENABLED, EMBEDDING_CACHE_SIZE
//   - ID_GENERATOR, SNOWFLAKE_NODE
//   - LOG_LEVEL, LOG_FORMAT
//
// Returns a Config instance, or an error if a variable cannot be parsed.
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}
	return configFromEnv()
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, NewMemoryError("LoadConfigFromEnvFile", err)
	}
	return configFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file. Missing sections
// keep their DefaultConfig values.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	return config, nil
}

func configFromEnv() (*Config, error) {
	config := DefaultConfig()
	env := envReader{}

	provider := strings.ToLower(env.getString("DATABASE_PROVIDER", config.VectorStore.Provider))
	var store map[string]interface{}
	switch provider {
	case "sqlite":
		store = map[string]interface{}{
			"db_path":              env.getString("SQLITE_PATH", "./brainmem.db"),
			"collection_name":      env.getString("SQLITE_COLLECTION", "memories"),
			"driver":               env.getString("SQLITE_DRIVER", ""),
			"embedding_model_dims": env.getInt("SQLITE_EMBEDDING_MODEL_DIMS", 0),
		}
	case "chromem":
		store = map[string]interface{}{
			"path":                 env.getString("CHROMEM_PATH", ""),
			"compress":             env.getBool("CHROMEM_COMPRESS", false),
			"collection_name":      env.getString("CHROMEM_COLLECTION", "memories"),
			"embedding_model_dims": env.getInt("CHROMEM_EMBEDDING_MODEL_DIMS", 0),
		}
	case "postgres":
		store = map[string]interface{}{
			"host":                 env.getString("POSTGRES_HOST", "localhost"),
			"port":                 env.getInt("POSTGRES_PORT", 5432),
			"user":                 env.getString("POSTGRES_USER", "postgres"),
			"password":             os.Getenv("POSTGRES_PASSWORD"),
			"db_name":              env.getString("POSTGRES_DATABASE", "brainmem"),
			"collection_name":      env.getString("POSTGRES_COLLECTION", "memories"),
			"embedding_model_dims": env.getInt("POSTGRES_EMBEDDING_MODEL_DIMS", 0),
			"ssl_mode":             env.getString("POSTGRES_SSLMODE", "disable"),
		}
	case "oceanbase":
		store = map[string]interface{}{
			"host":                 env.getString("OCEANBASE_HOST", "127.0.0.1"),
			"port":                 env.getInt("OCEANBASE_PORT", 2881),
			"user":                 env.getString("OCEANBASE_USER", "root@sys"),
			"password":             os.Getenv("OCEANBASE_PASSWORD"),
			"db_name":              env.getString("OCEANBASE_DATABASE", "brainmem"),
			"collection_name":      env.getString("OCEANBASE_COLLECTION", "memories"),
			"embedding_model_dims": env.getInt("OCEANBASE_EMBEDDING_MODEL_DIMS", 0),
		}
	default:
		store = map[string]interface{}{}
	}
	config.VectorStore = VectorStoreConfig{Provider: provider, Config: store}

	ollamaURL := env.getString("OLLAMA_BASE_URL", "")

	embedderProvider := strings.ToLower(env.getString("EMBEDDING_PROVIDER", config.Embedder.Provider))
	config.Embedder = EmbedderConfig{
		Provider:   embedderProvider,
		APIKey:     os.Getenv("EMBEDDING_API_KEY"),
		Model:      os.Getenv("EMBEDDING_MODEL"),
		BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
		Dimensions: env.getInt("EMBEDDING_DIMS", 0),
	}
	switch embedderProvider {
	case "hashing":
		if config.Embedder.Dimensions == 0 {
			config.Embedder.Dimensions = 256
		}
	case "ollama":
		if config.Embedder.BaseURL == "" {
			config.Embedder.BaseURL = ollamaURL
		}
	}

	llmProvider := strings.ToLower(os.Getenv("LLM_PROVIDER"))
	config.LLM = LLMConfig{
		Provider: llmProvider,
		APIKey:   os.Getenv("LLM_API_KEY"),
		Model:    os.Getenv("LLM_MODEL"),
		BaseURL:  os.Getenv("LLM_BASE_URL"),
	}
	if llmProvider == "ollama" {
		if config.LLM.BaseURL == "" {
			config.LLM.BaseURL = ollamaURL
		}
		if config.LLM.Model == "" {
			config.LLM.Model = os.Getenv("OLLAMA_MODEL")
		}
	}

	in := &config.Intelligence
	in.DecayRate = env.getFloat("DECAY_RATE", in.DecayRate)
	in.SimilarityThreshold = env.getFloat("SIMILARITY_THRESHOLD", in.SimilarityThreshold)
	in.DedupThreshold = env.getFloat("DEDUP_THRESHOLD", in.DedupThreshold)
	in.DefaultTopK = env.getInt("DEFAULT_TOP_K", in.DefaultTopK)
	in.SimilarityWeight = env.getFloat("RANK_WEIGHT_SIMILARITY", in.SimilarityWeight)
	in.ImportanceWeight = env.getFloat("RANK_WEIGHT_IMPORTANCE", in.ImportanceWeight)
	in.RecencyWeight = env.getFloat("RANK_WEIGHT_RECENCY", in.RecencyWeight)
	in.AccessWeight = env.getFloat("RANK_WEIGHT_ACCESS", in.AccessWeight)

	config.Cache.Enabled = env.getBool("EMBEDDING_CACHE_ENABLED", config.Cache.Enabled)
	config.Cache.MaxEntries = int64(env.getInt("EMBEDDING_CACHE_SIZE", int(config.Cache.MaxEntries)))

	config.IDGenerator.Kind = env.getString("ID_GENERATOR", config.IDGenerator.Kind)
	config.IDGenerator.Node = int64(env.getInt("SNOWFLAKE_NODE", int(config.IDGenerator.Node)))

	config.Logging.Level = env.getString("LOG_LEVEL", config.Logging.Level)
	config.Logging.Format = env.getString("LOG_FORMAT", config.Logging.Format)

	if len(env.errs) > 0 {
		return nil, NewMemoryError("LoadConfigFromEnv", invalidConfig("%s", strings.Join(env.errs, "; ")))
	}
	return config, nil
}

// Validate checks that the configuration can build a client.
//
// Returns an error wrapping ErrInvalidConfig when validation fails.
func (c *Config) Validate() error {
	switch c.Embedder.Provider {
	case "hashing", "openai", "qwen", "ollama":
	case "":
		return NewMemoryError("Validate", invalidConfig("embedder provider is required"))
	default:
		return NewMemoryError("Validate", invalidConfig("unknown embedder provider %q", c.Embedder.Provider))
	}

	switch c.VectorStore.Provider {
	case "sqlite", "chromem", "postgres", "oceanbase":
	case "":
		return NewMemoryError("Validate", invalidConfig("vector store provider is required"))
	default:
		return NewMemoryError("Validate", invalidConfig("unknown vector store provider %q", c.VectorStore.Provider))
	}

	switch c.LLM.Provider {
	case "", "openai", "deepseek", "qwen", "anthropic", "ollama":
	default:
		return NewMemoryError("Validate", invalidConfig("unknown llm provider %q", c.LLM.Provider))
	}

	if err := c.Intelligence.Validate(); err != nil {
		return NewMemoryError("Validate", err)
	}

	switch idgen.Kind(c.IDGenerator.Kind) {
	case "", idgen.KindSnowflake, idgen.KindUUID:
	default:
		return NewMemoryError("Validate", invalidConfig("unknown id generator %q", c.IDGenerator.Kind))
	}
	return nil
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}

// envReader reads typed environment variables and collects parse errors.
type envReader struct {
	errs []string
}

func (r *envReader) getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *envReader) getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s=%q is not an integer", key, v))
		return def
	}
	return n
}

func (r *envReader) getFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s=%q is not a number", key, v))
		return def
	}
	return f
}

func (r *envReader) getBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s=%q is not a boolean", key, v))
		return def
	}
	return b
}

// Typed accessors for VectorStoreConfig.Config. JSON numbers decode as
// float64, env values as int.

func configString(m map[string]interface{}, key, def string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return def
}

func configInt(m map[string]interface{}, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		if v != 0 {
			return v
		}
	case int64:
		if v != 0 {
			return int(v)
		}
	case float64:
		if v != 0 {
			return int(v)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil && n != 0 {
			return n
		}
	}
	return def
}

func configBool(m map[string]interface{}, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}
