package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ragcore/internal/modules/rag/domain/document"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IngestEventRepositoryImpl struct {
	db *gorm.DB
}

func NewIngestEventRepositoryImpl(db *gorm.DB) *IngestEventRepositoryImpl {
	return &IngestEventRepositoryImpl{db: db}
}

// Create 依赖 dedup_key 唯一约束做幂等，冲突时静默丢弃重复事件。
func (r *IngestEventRepositoryImpl) Create(ctx context.Context, event *document.IngestEvent) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedup_key"}},
			DoNothing: true,
		}).
		Create(event).Error
}

func (r *IngestEventRepositoryImpl) GetByID(ctx context.Context, id int64) (*document.IngestEvent, error) {
	var event document.IngestEvent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// ClaimForPublish 取待投递事件：publish_status=pending 且到达重试时间的，
// 按创建顺序取 limit 条。
func (r *IngestEventRepositoryImpl) ClaimForPublish(ctx context.Context, now time.Time, limit int) ([]document.IngestEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []document.IngestEvent
	err := r.db.WithContext(ctx).
		Where("publish_status = ?", document.IngestPublishStatusPending).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *IngestEventRepositoryImpl) MarkPublished(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&document.IngestEvent{}).
		Where("id = ?", id).
		Update("publish_status", document.IngestPublishStatusPublished).Error
}

// TryMarkProcessing 用条件更新抢占事件。返回 false 表示已被其他
// 消费者抢走或已终态，调用方应跳过。
func (r *IngestEventRepositoryImpl) TryMarkProcessing(ctx context.Context, id int64, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&document.IngestEvent{}).
		Where("id = ?", id).
		Where("status IN ?", []int8{document.IngestEventStatusPending, document.IngestEventStatusFailed}).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Update("status", document.IngestEventStatusProcessing)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *IngestEventRepositoryImpl) MarkSucceeded(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&document.IngestEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":    document.IngestEventStatusSucceeded,
			"error_msg": "",
		}).Error
}

func (r *IngestEventRepositoryImpl) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&document.IngestEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        document.IngestEventStatusFailed,
			"error_msg":     errMsg,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"next_retry_at": sql.NullTime{Time: nextRetryAt, Valid: true},
		}).Error
}
