package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"ragcore/internal/modules/rag/domain/document"
	"ragcore/internal/modules/rag/domain/repository"
	"ragcore/internal/modules/rag/infrastructure/mq"
	"ragcore/pkg/zlog"

	"go.uber.org/zap"
)

// DocumentIndexer 消费侧需要的索引能力，由应用层的 ChunkIndexer 实现。
type DocumentIndexer interface {
	ProcessDocument(ctx context.Context, doc *document.Document) (int, error)
	DeleteDocumentChunks(ctx context.Context, documentID int64) error
}

// IngestConsumerWorker 消费入库事件并驱动索引管道。
// 消息体是事件id，真实载荷回表读取；状态机保证同一事件不被并发处理。
type IngestConsumerWorker struct {
	consumer  mq.Consumer
	eventRepo repository.IngestEventRepository
	indexer   DocumentIndexer
}

func NewIngestConsumerWorker(consumer mq.Consumer, eventRepo repository.IngestEventRepository, indexer DocumentIndexer) *IngestConsumerWorker {
	return &IngestConsumerWorker{
		consumer:  consumer,
		eventRepo: eventRepo,
		indexer:   indexer,
	}
}

func (w *IngestConsumerWorker) Run(ctx context.Context) error {
	if w == nil || w.consumer == nil {
		return errors.New("consumer is nil")
	}
	if w.eventRepo == nil {
		return errors.New("event repo is nil")
	}
	if w.indexer == nil {
		return errors.New("indexer is nil")
	}
	return w.consumer.Run(ctx, w)
}

func (w *IngestConsumerWorker) Handle(ctx context.Context, msg mq.Message) error {
	idStr := strings.TrimSpace(string(msg.Value))
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		zlog.Warn("ingest consumer invalid event_id", zap.String("topic", msg.Topic))
		return nil
	}

	ev, err := w.eventRepo.GetByID(ctx, id)
	if err != nil {
		zlog.Warn("ingest consumer get event failed", zap.Int64("event_id", id), zap.Error(err))
		return err
	}
	if ev == nil {
		return nil
	}
	if ev.Status == document.IngestEventStatusSucceeded {
		return nil
	}

	now := time.Now()
	ok, err := w.eventRepo.TryMarkProcessing(ctx, ev.Id, now)
	if err != nil {
		zlog.Warn("ingest consumer mark processing failed", zap.Int64("event_id", ev.Id), zap.Error(err))
		return err
	}
	if !ok {
		return nil
	}

	if procErr := w.processEvent(ctx, ev); procErr != nil {
		next := nextRetryAt(now, ev.RetryCount)
		_ = w.eventRepo.MarkFailed(ctx, ev.Id, procErr.Error(), next)
		zlog.Warn("ingest consumer event failed",
			zap.Int64("event_id", ev.Id),
			zap.String("event_type", ev.EventType),
			zap.Int64("document_id", ev.DocumentId),
			zap.Error(procErr),
		)
		return nil
	}

	if err := w.eventRepo.MarkSucceeded(ctx, ev.Id); err != nil {
		zlog.Warn("ingest consumer mark succeeded failed", zap.Int64("event_id", ev.Id), zap.Error(err))
		return err
	}
	return nil
}

func (w *IngestConsumerWorker) processEvent(ctx context.Context, ev *document.IngestEvent) error {
	switch ev.EventType {
	case document.EventTypeDocumentUpload:
		var payload document.UploadPayload
		if err := json.Unmarshal([]byte(ev.PayloadJson), &payload); err != nil {
			return errors.New("无法解析上传事件载荷: " + err.Error())
		}
		// 重新入库前先清掉旧数据，重复消费也能收敛到一致状态
		if err := w.indexer.DeleteDocumentChunks(ctx, payload.DocumentId); err != nil {
			return err
		}
		_, err := w.indexer.ProcessDocument(ctx, &document.Document{
			DocumentId: payload.DocumentId,
			Text:       payload.Text,
			CanChunk:   payload.CanChunk,
		})
		return err

	case document.EventTypeDocumentDelete:
		var payload document.DeletePayload
		if err := json.Unmarshal([]byte(ev.PayloadJson), &payload); err != nil {
			return errors.New("无法解析删除事件载荷: " + err.Error())
		}
		return w.indexer.DeleteDocumentChunks(ctx, payload.DocumentId)

	default:
		zlog.Warn("ingest consumer unknown event type",
			zap.Int64("event_id", ev.Id),
			zap.String("event_type", ev.EventType))
		return nil
	}
}

// 重试间隔 30s 起倍增，封顶 30 分钟
func nextRetryAt(now time.Time, retryCount int) time.Time {
	if retryCount < 0 {
		retryCount = 0
	}
	d := 30 * time.Second
	for i := 0; i < retryCount && d < 30*time.Minute; i++ {
		d = d * 2
	}
	if d > 30*time.Minute {
		d = 30 * time.Minute
	}
	return now.Add(d)
}
