package persistence

import (
	"context"
	"errors"

	"ragcore/internal/modules/rag/domain/document"

	"gorm.io/gorm"
)

type ChunkRepositoryImpl struct {
	db *gorm.DB
}

func NewChunkRepositoryImpl(db *gorm.DB) *ChunkRepositoryImpl {
	return &ChunkRepositoryImpl{db: db}
}

func (r *ChunkRepositoryImpl) Insert(ctx context.Context, chunk *document.DocumentChunk) error {
	return r.db.WithContext(ctx).Create(chunk).Error
}

// GetByID 未命中返回 (nil, nil)，调用方据此识别悬空向量引用
func (r *ChunkRepositoryImpl) GetByID(ctx context.Context, chunkID int64) (*document.DocumentChunk, error) {
	var chunk document.DocumentChunk
	err := r.db.WithContext(ctx).Where("id = ?", chunkID).First(&chunk).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &chunk, nil
}

func (r *ChunkRepositoryImpl) ListByDocumentID(ctx context.Context, documentID int64) ([]document.DocumentChunk, error) {
	var chunks []document.DocumentChunk
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *ChunkRepositoryImpl) DeleteByDocumentID(ctx context.Context, documentID int64) error {
	return r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Delete(&document.DocumentChunk{}).Error
}
