package queue

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"ragcore/internal/modules/rag/domain/repository"
	"ragcore/internal/modules/rag/infrastructure/mq"
	"ragcore/pkg/zlog"

	"go.uber.org/zap"
)

// OutboxRelay 轮询 document_ingest_event 表，把待投递事件转发到Kafka。
// 消息体只带事件id，消费侧回表取载荷，避免大文档内容过Kafka。
type OutboxRelay struct {
	repo         repository.IngestEventRepository
	pub          mq.Publisher
	topic        string
	batchSize    int
	pollInterval time.Duration
}

func NewOutboxRelay(repo repository.IngestEventRepository, pub mq.Publisher, topic string, batchSize int, pollInterval time.Duration) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 200
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &OutboxRelay{
		repo:         repo,
		pub:          pub,
		topic:        strings.TrimSpace(topic),
		batchSize:    batchSize,
		pollInterval: pollInterval,
	}
}

func (r *OutboxRelay) Run(ctx context.Context) error {
	if r.repo == nil {
		return errors.New("ingest event repo is nil")
	}
	if r.pub == nil {
		return errors.New("publisher is nil")
	}
	if r.topic == "" {
		return errors.New("ingest topic is empty")
	}

	backoff := r.pollInterval
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.RunOnce(ctx)
		if err != nil {
			time.Sleep(backoff)
			backoff = backoff * 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			continue
		}
		backoff = r.pollInterval

		if n == 0 {
			time.Sleep(r.pollInterval)
		}
	}
}

// RunOnce 取一批事件逐条投递，返回成功投递的条数。
// 单条投递失败只记日志，事件保持pending等下一轮。
func (r *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	now := time.Now()
	events, err := r.repo.ClaimForPublish(ctx, now, r.batchSize)
	if err != nil {
		zlog.Warn("outbox relay claim failed", zap.Error(err))
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := 0
	for i := range events {
		ev := &events[i]
		// key 用 document_id，同一文档的事件落同一分区保序
		key := []byte(strconv.FormatInt(ev.DocumentId, 10))

		_, pubErr := r.pub.Publish(ctx, mq.Message{
			Topic: r.topic,
			Key:   key,
			Value: []byte(strconv.FormatInt(ev.Id, 10)),
			Headers: map[string]string{
				"event_type": ev.EventType,
				"dedup_key":  ev.DedupKey,
			},
		})
		if pubErr != nil {
			zlog.Warn("outbox relay publish failed", zap.Int64("event_id", ev.Id), zap.Error(pubErr))
			continue
		}

		if err := r.repo.MarkPublished(ctx, ev.Id); err != nil {
			zlog.Warn("outbox relay mark published failed", zap.Int64("event_id", ev.Id), zap.Error(err))
			continue
		}
		published++
	}
	return published, nil
}
