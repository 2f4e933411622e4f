package repository

import (
	"context"
	"time"

	"ragcore/internal/modules/rag/domain/document"
)

// IngestEventRepository 文档入库事件（outbox）持久化
type IngestEventRepository interface {
	// Create 写入事件；dedup_key 冲突时静默跳过
	Create(ctx context.Context, ev *document.IngestEvent) error
	GetByID(ctx context.Context, id int64) (*document.IngestEvent, error)
	// ClaimForPublish 取出待发布且到达重试时间的事件
	ClaimForPublish(ctx context.Context, now time.Time, limit int) ([]document.IngestEvent, error)
	MarkPublished(ctx context.Context, id int64) error
	// TryMarkProcessing 抢占式置为处理中，返回是否抢占成功（防止重复消费）
	TryMarkProcessing(ctx context.Context, id int64, now time.Time) (bool, error)
	MarkSucceeded(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error
}
