package document

import "fmt"

// IndexError 索引失败时携带文档 id 与失败片段序号，供调用方重试或排障。
// 已写入的片段不会自动回滚，重试前应先调用 DeleteDocumentChunks。
type IndexError struct {
	DocumentID int64
	Ordinal    int
	Err        error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("索引文档 %d 在片段 %d 处失败: %v", e.DocumentID, e.Ordinal, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }
