package repository

import "context"

// VectorSearchResult 单条向量检索命中。Distance 是索引返回的原始度量值，
// Similarity 是按度量类型归一化后的相似度（余弦距离下为 1 - distance，
// 浮点误差可能略微越界，使用方应按需 clamp 而不是断言范围）。
type VectorSearchResult struct {
	ChunkID    int64
	Distance   float32
	Similarity float32
}

// VectorStore 是 domain 层定义的向量库能力抽象。
//
// 设计约束：
// 1) application / domain 只能依赖本接口，不应直接依赖 Milvus SDK。
// 2) infrastructure 通过适配器实现本接口，从而做到可替换（Milvus/pgvector 等）。
type VectorStore interface {
	// EnsureCollection 幂等创建集合与索引；重复建索引等冲突按成功处理
	EnsureCollection(ctx context.Context) error
	// Insert 单点写入，不等待索引构建完成
	Insert(ctx context.Context, chunkID int64, vector []float32) error
	// Search 返回至多 topK 条按相似度降序的命中，过滤相似度低于 minSimilarity 的结果；
	// minSimilarity <= 0 时使用默认阈值 0.5
	Search(ctx context.Context, vector []float32, topK int, minSimilarity float32) ([]VectorSearchResult, error)
	// Delete 按 chunkID 点删，删除不存在的 id 不报错
	Delete(ctx context.Context, chunkID int64) error
}
