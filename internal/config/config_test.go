package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults(t *testing.T) {
	c := new(Config)
	applyDefaults(c)

	assert.Equal(t, 800, c.RAGConfig.ChunkSize)
	assert.Equal(t, 100, c.RAGConfig.ChunkOverlap)
	assert.Equal(t, 50000, c.RAGConfig.MaxChunks)
	assert.Equal(t, 50*1024*1024, c.RAGConfig.MaxDocumentChars)
	assert.Equal(t, 5, c.RAGConfig.DefaultTopK)
	assert.InDelta(t, 0.35, c.RAGConfig.DefaultMinSimilarity, 1e-9)
	assert.NotEmpty(t, c.RAGConfig.QueryExpandSuffix)
	assert.Contains(t, c.RAGConfig.StopWords, "的")
	assert.False(t, c.RAGConfig.DisableCJKNgram)

	assert.Equal(t, 1024, c.MilvusConfig.VectorDim)
	assert.Equal(t, "document_chunk_vectors", c.MilvusConfig.CollectionName)
	assert.Equal(t, "COSINE", c.MilvusConfig.MetricType)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	c := new(Config)
	c.RAGConfig.ChunkSize = 1200
	c.RAGConfig.DefaultTopK = 10
	c.MilvusConfig.MetricType = "L2"
	applyDefaults(c)

	assert.Equal(t, 1200, c.RAGConfig.ChunkSize)
	assert.Equal(t, 10, c.RAGConfig.DefaultTopK)
	assert.Equal(t, "L2", c.MilvusConfig.MetricType)
}
