package queue

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"ragcore/internal/modules/rag/domain/document"
	"ragcore/internal/modules/rag/infrastructure/mq"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEventRepo struct {
	events     map[int64]*document.IngestEvent
	processing []int64
	succeeded  []int64
	failed     []int64
	published  []int64
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: make(map[int64]*document.IngestEvent)}
}

func (f *fakeEventRepo) Create(_ context.Context, ev *document.IngestEvent) error {
	f.events[ev.Id] = ev
	return nil
}

func (f *fakeEventRepo) GetByID(_ context.Context, id int64) (*document.IngestEvent, error) {
	ev, ok := f.events[id]
	if !ok {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

func (f *fakeEventRepo) ClaimForPublish(_ context.Context, _ time.Time, limit int) ([]document.IngestEvent, error) {
	var out []document.IngestEvent
	for _, ev := range f.events {
		if ev.PublishStatus == document.IngestPublishStatusPending {
			out = append(out, *ev)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeEventRepo) MarkPublished(_ context.Context, id int64) error {
	f.published = append(f.published, id)
	f.events[id].PublishStatus = document.IngestPublishStatusPublished
	return nil
}

func (f *fakeEventRepo) TryMarkProcessing(_ context.Context, id int64, _ time.Time) (bool, error) {
	ev := f.events[id]
	if ev.Status == document.IngestEventStatusProcessing || ev.Status == document.IngestEventStatusSucceeded {
		return false, nil
	}
	ev.Status = document.IngestEventStatusProcessing
	f.processing = append(f.processing, id)
	return true, nil
}

func (f *fakeEventRepo) MarkSucceeded(_ context.Context, id int64) error {
	f.events[id].Status = document.IngestEventStatusSucceeded
	f.succeeded = append(f.succeeded, id)
	return nil
}

func (f *fakeEventRepo) MarkFailed(_ context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	ev := f.events[id]
	ev.Status = document.IngestEventStatusFailed
	ev.ErrorMsg = errMsg
	ev.RetryCount++
	f.failed = append(f.failed, id)
	return nil
}

type fakeIndexer struct {
	processed []int64
	deleted   []int64
	procErr   error
}

func (f *fakeIndexer) ProcessDocument(_ context.Context, doc *document.Document) (int, error) {
	if f.procErr != nil {
		return 0, f.procErr
	}
	f.processed = append(f.processed, doc.DocumentId)
	return 1, nil
}

func (f *fakeIndexer) DeleteDocumentChunks(_ context.Context, documentID int64) error {
	f.deleted = append(f.deleted, documentID)
	return nil
}

type fakePublisher struct {
	messages []mq.Message
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, msg mq.Message) (mq.PublishResult, error) {
	if f.err != nil {
		return mq.PublishResult{}, f.err
	}
	f.messages = append(f.messages, msg)
	return mq.PublishResult{}, nil
}

func (f *fakePublisher) Close() error { return nil }

func uploadEvent(id, docID int64) *document.IngestEvent {
	return &document.IngestEvent{
		Id:          id,
		EventType:   document.EventTypeDocumentUpload,
		DocumentId:  docID,
		PayloadJson: `{"document_id":` + strconv.FormatInt(docID, 10) + `,"text":"内容","can_chunk":true}`,
		DedupKey:    "k" + strconv.FormatInt(id, 10),
	}
}

func TestWorkerHandleUploadEvent(t *testing.T) {
	repo := newFakeEventRepo()
	repo.events[1] = uploadEvent(1, 42)
	ix := &fakeIndexer{}
	w := NewIngestConsumerWorker(nil, repo, ix)

	err := w.Handle(context.Background(), mq.Message{Value: []byte("1")})
	require.NoError(t, err)

	// 入库前先清旧数据，再重建
	assert.Equal(t, []int64{42}, ix.deleted)
	assert.Equal(t, []int64{42}, ix.processed)
	assert.Equal(t, []int64{1}, repo.succeeded)
}

func TestWorkerHandleDeleteEvent(t *testing.T) {
	repo := newFakeEventRepo()
	repo.events[2] = &document.IngestEvent{
		Id:          2,
		EventType:   document.EventTypeDocumentDelete,
		DocumentId:  42,
		PayloadJson: `{"document_id":42}`,
	}
	ix := &fakeIndexer{}
	w := NewIngestConsumerWorker(nil, repo, ix)

	require.NoError(t, w.Handle(context.Background(), mq.Message{Value: []byte("2")}))
	assert.Equal(t, []int64{42}, ix.deleted)
	assert.Empty(t, ix.processed)
	assert.Equal(t, []int64{2}, repo.succeeded)
}

func TestWorkerHandleProcessFailureMarksFailed(t *testing.T) {
	repo := newFakeEventRepo()
	repo.events[3] = uploadEvent(3, 42)
	ix := &fakeIndexer{procErr: errors.New("embedding down")}
	w := NewIngestConsumerWorker(nil, repo, ix)

	// 处理失败不向 Kafka 报错，由事件状态机重试
	require.NoError(t, w.Handle(context.Background(), mq.Message{Value: []byte("3")}))
	assert.Equal(t, []int64{3}, repo.failed)
	assert.Equal(t, 1, repo.events[3].RetryCount)
}

func TestWorkerHandleSkipsSucceededEvent(t *testing.T) {
	repo := newFakeEventRepo()
	ev := uploadEvent(4, 42)
	ev.Status = document.IngestEventStatusSucceeded
	repo.events[4] = ev
	ix := &fakeIndexer{}
	w := NewIngestConsumerWorker(nil, repo, ix)

	require.NoError(t, w.Handle(context.Background(), mq.Message{Value: []byte("4")}))
	assert.Empty(t, ix.processed)
	assert.Empty(t, repo.processing)
}

func TestWorkerHandleIgnoresGarbageMessage(t *testing.T) {
	w := NewIngestConsumerWorker(nil, newFakeEventRepo(), &fakeIndexer{})
	assert.NoError(t, w.Handle(context.Background(), mq.Message{Value: []byte("not-a-number")}))
	assert.NoError(t, w.Handle(context.Background(), mq.Message{Value: []byte("999")}))
}

func TestRelayRunOncePublishesAndMarks(t *testing.T) {
	repo := newFakeEventRepo()
	repo.events[1] = uploadEvent(1, 42)
	pub := &fakePublisher{}
	relay := NewOutboxRelay(repo, pub, "rag.ingest", 10, time.Millisecond)

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, pub.messages, 1)
	assert.Equal(t, "rag.ingest", pub.messages[0].Topic)
	assert.Equal(t, []byte("1"), pub.messages[0].Value)
	assert.Equal(t, []byte("42"), pub.messages[0].Key)
	assert.Equal(t, []int64{1}, repo.published)
}

func TestRelayRunOncePublishFailureKeepsPending(t *testing.T) {
	repo := newFakeEventRepo()
	repo.events[1] = uploadEvent(1, 42)
	pub := &fakePublisher{err: errors.New("broker down")}
	relay := NewOutboxRelay(repo, pub, "rag.ingest", 10, time.Millisecond)

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, repo.published)
	assert.Equal(t, document.IngestPublishStatusPending, repo.events[1].PublishStatus)
}

func TestNextRetryBackoff(t *testing.T) {
	now := time.Now()
	assert.Equal(t, now.Add(30*time.Second), nextRetryAt(now, 0))
	assert.Equal(t, now.Add(60*time.Second), nextRetryAt(now, 1))
	assert.Equal(t, now.Add(30*time.Minute), nextRetryAt(now, 10))
}
