package repository

import "context"

// TextType 向量化用途。部分提供商对查询与入库文本计算不同的向量。
type TextType string

const (
	TextTypeQuery    TextType = "query"
	TextTypeDocument TextType = "document"
)

// Embedder 向量化服务抽象。实现可能超时或失败，错误以 xerr.CodeEmbeddingFailed
// 包装并携带提供商返回的消息。
type Embedder interface {
	EmbedText(ctx context.Context, text string, textType TextType) ([]float32, error)
	EmbedImage(ctx context.Context, imageBase64 string) ([]float32, error)
	// Dimensions 返回向量维度（流水线全局常量，如 1024）
	Dimensions() int
}
