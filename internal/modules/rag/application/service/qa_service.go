package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ragcore/internal/modules/rag/domain/document"
	"ragcore/pkg/zlog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// QAService 基于检索片段的问答。检索失败或模型失败都降级为
// 带错误说明的兜底回答，不向上抛错。
type QAService struct {
	retrieval *RetrievalEngine
	chatModel model.BaseChatModel
	modelName string
}

// QAAnswer 问答结果与引用片段
type QAAnswer struct {
	Question   string
	Answer     string
	References []QAReference
	ChunkCount int
	Model      string
	Timestamp  time.Time
	Error      string
}

type QAReference struct {
	DocumentID int64
	ChunkIndex int
	Preview    string
}

func NewQAService(retrieval *RetrievalEngine, chatModel model.BaseChatModel, modelName string) *QAService {
	return &QAService{
		retrieval: retrieval,
		chatModel: chatModel,
		modelName: modelName,
	}
}

// AnswerQuestion RAG 问答：检索相关片段拼进 prompt 再问模型
func (s *QAService) AnswerQuestion(ctx context.Context, question string, topK int) *QAAnswer {
	zlog.Info("处理问题", zap.String("question", question))
	if topK <= 0 {
		topK = 5
	}

	chunks := s.retrieval.Retrieve(ctx, question, topK)
	zlog.Info("检索到相关片段", zap.Int("chunk_count", len(chunks)))

	prompt := buildPrompt(question, chunks)
	resp, err := s.chatModel.Generate(ctx, []*schema.Message{
		schema.UserMessage(prompt),
	})
	if err != nil {
		zlog.Error("问答失败", zap.String("question", question), zap.Error(err))
		return &QAAnswer{
			Question:  question,
			Answer:    "抱歉，处理失败: " + err.Error(),
			Error:     err.Error(),
			Timestamp: time.Now(),
		}
	}

	return &QAAnswer{
		Question:   question,
		Answer:     resp.Content,
		References: buildReferences(chunks),
		ChunkCount: len(chunks),
		Model:      s.modelName,
		Timestamp:  time.Now(),
	}
}

func buildPrompt(question string, chunks []document.DocumentChunk) string {
	var sb strings.Builder
	sb.WriteString("根据以下文档片段回答问题：\n\n")
	for i, c := range chunks {
		sb.WriteString(fmt.Sprintf("[片段 %d]\n", i+1))
		sb.WriteString(c.Content)
		sb.WriteString("\n\n")
	}
	sb.WriteString("问题: ")
	sb.WriteString(question)
	sb.WriteString("\n请基于以上片段回答，如果片段中没有相关信息，请说明。")
	return sb.String()
}

func buildReferences(chunks []document.DocumentChunk) []QAReference {
	refs := make([]QAReference, 0, len(chunks))
	for _, c := range chunks {
		preview := c.Content
		if runes := []rune(preview); len(runes) > 100 {
			preview = string(runes[:100])
		}
		refs = append(refs, QAReference{
			DocumentID: c.DocumentId,
			ChunkIndex: c.ChunkIndex,
			Preview:    preview,
		})
	}
	return refs
}
