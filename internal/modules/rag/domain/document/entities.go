package document

import (
	"database/sql"
	"time"
)

// Document 入站文档：解析层输出的已解码文本加是否允许切片标记。
// 文档本体由上游管理，核心只按 id 引用。
type Document struct {
	DocumentId int64
	Text       string
	CanChunk   bool
}

// DocumentChunk 文档切片记录。Id 与向量库中的向量一一对应。
type DocumentChunk struct {
	Id         int64     `gorm:"column:id;primaryKey;autoIncrement:false"`
	DocumentId int64     `gorm:"column:document_id;index:idx_chunk_document;not null"`
	ChunkIndex int       `gorm:"column:chunk_index;type:int;not null"`
	Content    string    `gorm:"column:content;type:mediumtext"`
	StartPos   int       `gorm:"column:start_pos;type:int;not null"`
	EndPos     int       `gorm:"column:end_pos;type:int;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (DocumentChunk) TableName() string { return "document_chunk" }

// IngestEvent 文档入库事件（outbox 行）。写库与发 Kafka 解耦，
// 消费端按事件驱动执行切片索引或删除。
type IngestEvent struct {
	Id            int64        `gorm:"column:id;primaryKey;autoIncrement"`
	EventType     string       `gorm:"column:event_type;type:varchar(40);not null"`
	DocumentId    int64        `gorm:"column:document_id;index:idx_ingest_event_document;not null"`
	PayloadJson   string       `gorm:"column:payload_json;type:json"`
	DedupKey      string       `gorm:"column:dedup_key;type:varchar(160);not null;uniqueIndex:uniq_ingest_event_dedup"`
	PublishStatus int8         `gorm:"column:publish_status;type:tinyint;not null;default:0;index:idx_ingest_event_publish"`
	Status        int8         `gorm:"column:status;type:tinyint;not null;default:0;index:idx_ingest_event_status"`
	RetryCount    int          `gorm:"column:retry_count;type:int;not null;default:0"`
	NextRetryAt   sql.NullTime `gorm:"column:next_retry_at;type:datetime;index:idx_ingest_event_next_retry"`
	ErrorMsg      string       `gorm:"column:error_msg;type:varchar(255)"`
	CreatedAt     time.Time    `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt     time.Time    `gorm:"column:updated_at;type:datetime;not null"`
}

func (IngestEvent) TableName() string { return "document_ingest_event" }

const (
	EventTypeDocumentUpload = "document_upload"
	EventTypeDocumentDelete = "document_delete"
)

const (
	IngestEventStatusPending    int8 = 0
	IngestEventStatusProcessing int8 = 1
	IngestEventStatusSucceeded  int8 = 2
	IngestEventStatusFailed     int8 = 3
)

const (
	IngestPublishStatusPending   int8 = 0
	IngestPublishStatusPublished int8 = 1
)

// UploadPayload document_upload 事件载荷
type UploadPayload struct {
	DocumentId int64  `json:"document_id"`
	Text       string `json:"text"`
	CanChunk   bool   `json:"can_chunk"`
}

// DeletePayload document_delete 事件载荷
type DeletePayload struct {
	DocumentId int64 `json:"document_id"`
}
