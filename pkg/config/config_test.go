package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Milvus: MilvusConfig{
			Endpoint:       "localhost:19530",
			CollectionName: "pdf_chunks",
			VectorDim:      1536,
		},
		LLM: LLMConfig{
			APIKey:      "sk-test",
			Temperature: 0.2,
			MaxRetries:  2,
		},
		Ingestion: IngestionConfig{
			ChunkSize:         800,
			ChunkOverlap:      100,
			UpsertConcurrency: 4,
			UpsertBatchSize:   64,
		},
		Retrieval: RetrievalConfig{TopK: 5},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.LLM.APIKey = "" },
			wantMsg: "llm.apiKey",
		},
		{
			name:    "missing milvus endpoint",
			mutate:  func(c *Config) { c.Milvus.Endpoint = "" },
			wantMsg: "milvus.endpoint",
		},
		{
			name:    "missing collection name",
			mutate:  func(c *Config) { c.Milvus.CollectionName = "" },
			wantMsg: "milvus.collectionName",
		},
		{
			name:    "zero overlap",
			mutate:  func(c *Config) { c.Ingestion.ChunkOverlap = 0 },
			wantMsg: "chunkOverlap",
		},
		{
			name:    "overlap equals chunk size",
			mutate:  func(c *Config) { c.Ingestion.ChunkOverlap = c.Ingestion.ChunkSize },
			wantMsg: "chunkOverlap",
		},
		{
			name:    "overlap larger than chunk size",
			mutate:  func(c *Config) { c.Ingestion.ChunkOverlap = c.Ingestion.ChunkSize + 1 },
			wantMsg: "chunkOverlap",
		},
		{
			name:    "non-positive topK",
			mutate:  func(c *Config) { c.Retrieval.TopK = 0 },
			wantMsg: "topK",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
