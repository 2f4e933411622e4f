package repository

import (
	"context"

	"ragcore/internal/modules/rag/domain/document"
)

// ChunkRepository 切片元数据（MySQL）的持久化边界。
// 点查不到时返回 (nil, nil) 而不是错误：悬空向量引用在检索路径中是良性情况。
type ChunkRepository interface {
	Insert(ctx context.Context, chunk *document.DocumentChunk) error
	GetByID(ctx context.Context, chunkID int64) (*document.DocumentChunk, error)
	ListByDocumentID(ctx context.Context, documentID int64) ([]document.DocumentChunk, error)
	DeleteByDocumentID(ctx context.Context, documentID int64) error
}
