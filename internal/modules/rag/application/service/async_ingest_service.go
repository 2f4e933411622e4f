package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"ragcore/internal/modules/rag/domain/document"
	"ragcore/internal/modules/rag/domain/repository"
	"ragcore/pkg/zlog"

	"go.uber.org/zap"
)

// AsyncIngestService 异步入库入口：把上传/删除请求落为 outbox 事件，
// 由 relay 投递 Kafka、消费端执行真正的索引。接口返回即代表事件
// 已持久化，重复提交靠 dedup_key 幂等吸收。
type AsyncIngestService struct {
	events repository.IngestEventRepository
}

func NewAsyncIngestService(events repository.IngestEventRepository) *AsyncIngestService {
	return &AsyncIngestService{events: events}
}

// EnqueueDocument 提交文档入库。同一文档同一内容只会产生一个事件。
func (s *AsyncIngestService) EnqueueDocument(ctx context.Context, doc *document.Document) error {
	payload, err := json.Marshal(document.UploadPayload{
		DocumentId: doc.DocumentId,
		Text:       doc.Text,
		CanChunk:   doc.CanChunk,
	})
	if err != nil {
		return err
	}

	now := time.Now()
	ev := &document.IngestEvent{
		EventType:   document.EventTypeDocumentUpload,
		DocumentId:  doc.DocumentId,
		PayloadJson: string(payload),
		DedupKey:    uploadDedupKey(doc.DocumentId, doc.Text),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.events.Create(ctx, ev); err != nil {
		return err
	}
	zlog.Info("文档入库事件已提交",
		zap.Int64("document_id", doc.DocumentId),
		zap.String("dedup_key", ev.DedupKey))
	return nil
}

// EnqueueDelete 提交文档删除。dedup_key 带时间戳，同一文档允许
// 先删后传再删的完整周期。
func (s *AsyncIngestService) EnqueueDelete(ctx context.Context, documentID int64) error {
	payload, err := json.Marshal(document.DeletePayload{DocumentId: documentID})
	if err != nil {
		return err
	}

	now := time.Now()
	ev := &document.IngestEvent{
		EventType:   document.EventTypeDocumentDelete,
		DocumentId:  documentID,
		PayloadJson: string(payload),
		DedupKey:    fmt.Sprintf("doc_delete_%d_%d", documentID, now.UnixMilli()),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.events.Create(ctx, ev); err != nil {
		return err
	}
	zlog.Info("文档删除事件已提交", zap.Int64("document_id", documentID))
	return nil
}

func uploadDedupKey(documentID int64, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("doc_upload_%d_%s", documentID, hex.EncodeToString(sum[:])[:16])
}
