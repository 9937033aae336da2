package core

import (
	"fmt"

	"github.com/powerbrain/brainmem-go/pkg/embedder"
	"github.com/powerbrain/brainmem-go/pkg/embedder/cached"
	"github.com/powerbrain/brainmem-go/pkg/embedder/hashing"
	ollamaEmbedder "github.com/powerbrain/brainmem-go/pkg/embedder/ollama"
	openaiEmbedder "github.com/powerbrain/brainmem-go/pkg/embedder/openai"
	"github.com/powerbrain/brainmem-go/pkg/llm"
	"github.com/powerbrain/brainmem-go/pkg/llm/anthropic"
	ollamaLLM "github.com/powerbrain/brainmem-go/pkg/llm/ollama"
	openaiLLM "github.com/powerbrain/brainmem-go/pkg/llm/openai"
	"github.com/powerbrain/brainmem-go/pkg/storage"
	chromemStore "github.com/powerbrain/brainmem-go/pkg/storage/chromem"
	"github.com/powerbrain/brainmem-go/pkg/storage/oceanbase"
	postgresStore "github.com/powerbrain/brainmem-go/pkg/storage/postgres"
	sqliteStore "github.com/powerbrain/brainmem-go/pkg/storage/sqlite"
)

// initStorage initializes the vector index. The embedding dimension falls
// back to the embedder's when the store config does not set one.
func initStorage(cfg VectorStoreConfig, dims int) (storage.VectorIndex, error) {
	m := cfg.Config
	dims = configInt(m, "embedding_model_dims", dims)

	switch cfg.Provider {
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:             configString(m, "db_path", "./brainmem.db"),
			CollectionName:     configString(m, "collection_name", "memories"),
			EmbeddingModelDims: dims,
			Driver:             configString(m, "driver", sqliteStore.DriverCGO),
		})
	case "chromem":
		return chromemStore.NewClient(&chromemStore.Config{
			Path:               configString(m, "path", ""),
			Compress:           configBool(m, "compress"),
			CollectionName:     configString(m, "collection_name", "memories"),
			EmbeddingModelDims: dims,
		})
	case "postgres":
		return postgresStore.NewClient(&postgresStore.Config{
			Host:               configString(m, "host", "localhost"),
			Port:               configInt(m, "port", 5432),
			User:               configString(m, "user", "postgres"),
			Password:           configString(m, "password", ""),
			DBName:             configString(m, "db_name", "brainmem"),
			CollectionName:     configString(m, "collection_name", "memories"),
			EmbeddingModelDims: dims,
			SSLMode:            configString(m, "ssl_mode", "disable"),
		})
	case "oceanbase":
		return oceanbase.NewClient(&oceanbase.Config{
			Host:               configString(m, "host", "127.0.0.1"),
			Port:               configInt(m, "port", 2881),
			User:               configString(m, "user", "root@sys"),
			Password:           configString(m, "password", ""),
			DBName:             configString(m, "db_name", "brainmem"),
			CollectionName:     configString(m, "collection_name", "memories"),
			EmbeddingModelDims: dims,
		})
	default:
		return nil, invalidConfig("unknown vector store provider %q", cfg.Provider)
	}
}

// OpenAI-compatible endpoints reached through the openai clients.
const (
	deepseekBaseURL = "https://api.deepseek.com"
	qwenBaseURL     = "https://dashscope.aliyuncs.com/compatible-mode/v1"
)

// initLLM initializes the LLM provider.
func initLLM(cfg LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "deepseek":
		return openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   orDefault(cfg.Model, "deepseek-chat"),
			BaseURL: orDefault(cfg.BaseURL, deepseekBaseURL),
		})
	case "qwen":
		return openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   orDefault(cfg.Model, "qwen-plus"),
			BaseURL: orDefault(cfg.BaseURL, qwenBaseURL),
		})
	case "anthropic":
		return anthropic.NewClient(&anthropic.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "ollama":
		return ollamaLLM.NewClient(&ollamaLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	default:
		return nil, invalidConfig("unknown llm provider %q", cfg.Provider)
	}
}

// initEmbedder initializes the embedder and wraps it with the vector cache
// when enabled.
func initEmbedder(cfg *Config) (embedder.Provider, error) {
	ec := cfg.Embedder

	var (
		provider embedder.Provider
		err      error
	)
	switch ec.Provider {
	case "hashing":
		provider = hashing.New(ec.Dimensions)
	case "openai":
		provider, err = openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     ec.APIKey,
			Model:      ec.Model,
			BaseURL:    ec.BaseURL,
			Dimensions: ec.Dimensions,
		})
	case "qwen":
		provider, err = openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     ec.APIKey,
			Model:      orDefault(ec.Model, "text-embedding-v3"),
			BaseURL:    orDefault(ec.BaseURL, qwenBaseURL),
			Dimensions: ec.Dimensions,
		})
	case "ollama":
		provider, err = ollamaEmbedder.NewClient(&ollamaEmbedder.Config{
			Model:      ec.Model,
			BaseURL:    ec.BaseURL,
			Dimensions: ec.Dimensions,
		})
	default:
		return nil, invalidConfig("unknown embedder provider %q", ec.Provider)
	}
	if err != nil {
		return nil, err
	}

	if !cfg.Cache.Enabled {
		return provider, nil
	}
	wrapped, err := cached.New(provider, &cached.Config{
		MaxEntries: cfg.Cache.MaxEntries,
		Namespace:  fmt.Sprintf("%s:%s:%d", ec.Provider, ec.Model, provider.Dimensions()),
	})
	if err != nil {
		_ = provider.Close()
		return nil, err
	}
	return wrapped, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
