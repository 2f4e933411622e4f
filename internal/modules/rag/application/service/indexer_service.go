package service

import (
	"context"
	"time"

	"ragcore/internal/config"
	"ragcore/internal/modules/rag/domain/document"
	"ragcore/internal/modules/rag/domain/repository"
	"ragcore/internal/modules/rag/infrastructure/splitter"
	"ragcore/pkg/util"
	"ragcore/pkg/xerr"
	"ragcore/pkg/zlog"

	"go.uber.org/zap"
)

// ChunkIndexer 文档索引管道：切片 → 元数据落库 → 向量化 → 向量入库。
// 每个片段先写MySQL行再写向量，保证向量库中的 chunk_id 永远可回表；
// 反向的悬空（有行无向量）只影响该片段的召回，是可接受的降级。
type ChunkIndexer struct {
	splitter *splitter.TextSplitter
	chunks   repository.ChunkRepository
	vectors  repository.VectorStore
	embedder repository.Embedder
	idGen    *util.Snowflake
	maxChars int
}

func NewChunkIndexer(
	chunks repository.ChunkRepository,
	vectors repository.VectorStore,
	embedder repository.Embedder,
	idGen *util.Snowflake,
	ragConf config.RAGConfig,
) *ChunkIndexer {
	sp := splitter.NewTextSplitter(ragConf.ChunkSize, ragConf.ChunkOverlap)
	if ragConf.MaxChunks > 0 {
		sp.MaxChunks = ragConf.MaxChunks
	}
	return &ChunkIndexer{
		splitter: sp,
		chunks:   chunks,
		vectors:  vectors,
		embedder: embedder,
		idGen:    idGen,
		maxChars: ragConf.MaxDocumentChars,
	}
}

// ProcessDocument 索引整篇文档，返回成功入库的片段数。
// 中途失败返回已完成数和 *document.IndexError；已写入的片段保留，
// 调用方重试前应先 DeleteDocumentChunks。
func (ix *ChunkIndexer) ProcessDocument(ctx context.Context, doc *document.Document) (int, error) {
	if doc == nil {
		return 0, xerr.ErrParam
	}
	if !doc.CanChunk {
		return 0, xerr.ErrUnsupportedDocument
	}
	runeCount := len([]rune(doc.Text))
	if ix.maxChars > 0 && runeCount > ix.maxChars {
		zlog.Warn("文档超出大小上限",
			zap.Int64("document_id", doc.DocumentId),
			zap.Int("chars", runeCount),
			zap.Int("limit", ix.maxChars))
		return 0, xerr.ErrTooLarge
	}

	chunks, err := ix.splitter.Split(doc.Text)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		zlog.Info("文档内容为空，跳过索引", zap.Int64("document_id", doc.DocumentId))
		return 0, nil
	}

	zlog.Info("开始索引文档",
		zap.Int64("document_id", doc.DocumentId),
		zap.Int("chunk_count", len(chunks)))
	start := time.Now()

	completed := 0
	for _, c := range chunks {
		if err := ix.indexChunk(ctx, doc.DocumentId, c); err != nil {
			zlog.Error("片段索引失败",
				zap.Int64("document_id", doc.DocumentId),
				zap.Int("ordinal", c.Index),
				zap.Int("completed", completed),
				zap.Error(err))
			return completed, &document.IndexError{
				DocumentID: doc.DocumentId,
				Ordinal:    c.Index,
				Err:        err,
			}
		}
		completed++
		if completed%50 == 0 {
			zlog.Info("索引进度",
				zap.Int64("document_id", doc.DocumentId),
				zap.Int("completed", completed),
				zap.Int("total", len(chunks)))
		}
	}

	zlog.Info("文档索引完成",
		zap.Int64("document_id", doc.DocumentId),
		zap.Int("chunk_count", completed),
		zap.Duration("elapsed", time.Since(start)))
	return completed, nil
}

// indexChunk 先写元数据行，再向量化，最后写向量。
// 顺序不可调换：向量先写会在元数据写失败时产生不可回表的向量。
func (ix *ChunkIndexer) indexChunk(ctx context.Context, documentID int64, c splitter.Chunk) error {
	chunkID, err := ix.idGen.NextID()
	if err != nil {
		return err
	}

	now := time.Now()
	row := &document.DocumentChunk{
		Id:         chunkID,
		DocumentId: documentID,
		ChunkIndex: c.Index,
		Content:    c.Text,
		StartPos:   c.StartPos,
		EndPos:     c.EndPos,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := ix.chunks.Insert(ctx, row); err != nil {
		return err
	}

	vector, err := ix.embedder.EmbedText(ctx, c.Text, repository.TextTypeDocument)
	if err != nil {
		return err
	}
	return ix.vectors.Insert(ctx, chunkID, vector)
}

// DeleteDocumentChunks 删除文档的全部片段。先删向量再删行：
// 行先没了向量还在，会留下永远无法回表的孤儿向量。
// 单个向量删除失败只记日志，保证行删除仍然执行。
func (ix *ChunkIndexer) DeleteDocumentChunks(ctx context.Context, documentID int64) error {
	chunks, err := ix.chunks.ListByDocumentID(ctx, documentID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	for _, c := range chunks {
		if err := ix.vectors.Delete(ctx, c.Id); err != nil {
			zlog.Warn("向量删除失败，继续",
				zap.Int64("document_id", documentID),
				zap.Int64("chunk_id", c.Id),
				zap.Error(err))
		}
	}

	if err := ix.chunks.DeleteByDocumentID(ctx, documentID); err != nil {
		return err
	}
	zlog.Info("文档片段已删除",
		zap.Int64("document_id", documentID),
		zap.Int("chunk_count", len(chunks)))
	return nil
}
