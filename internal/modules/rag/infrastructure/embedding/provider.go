package embedding

import (
	"context"
	"fmt"
	"time"

	"ragcore/internal/config"
	"ragcore/internal/modules/rag/domain/repository"
	"ragcore/pkg/xerr"
	"ragcore/pkg/zlog"

	"github.com/cloudwego/eino-ext/components/embedding/ark"
	"github.com/cloudwego/eino-ext/components/embedding/openai"
	einoembedding "github.com/cloudwego/eino/components/embedding"
	"go.uber.org/zap"
)

// NewEmbedder 根据配置创建向量化提供商。
// 支持 mock / dashscope / openai / ark 四种 provider。
func NewEmbedder(ctx context.Context, cfg config.AIEmbeddingConfig) (repository.Embedder, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	switch cfg.Provider {
	case "", "mock":
		zlog.Warn("使用mock向量化提供商，仅适用于本地开发与测试")
		return NewMockEmbedder(cfg.Dimensions), nil

	case "dashscope":
		zlog.Info("初始化DashScope向量化提供商",
			zap.String("model", dashScopeTextModel),
			zap.Int("dimensions", cfg.Dimensions))
		return NewDashScopeEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Dimensions, timeout), nil

	case "openai":
		emb, err := openai.NewEmbedder(ctx, &openai.EmbeddingConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: &cfg.Dimensions,
			Timeout:    timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("创建openai embedder失败: %w", err)
		}
		return newEinoEmbedder(emb, cfg.Dimensions), nil

	case "ark":
		emb, err := ark.NewEmbedder(ctx, &ark.EmbeddingConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: &timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("创建ark embedder失败: %w", err)
		}
		return newEinoEmbedder(emb, cfg.Dimensions), nil

	default:
		return nil, fmt.Errorf("不支持的向量化提供商: %s", cfg.Provider)
	}
}

// einoEmbedder 把 eino 的 Embedder 适配到本模块的接口。
// eino 的接口不区分 query/document 模式，textType 在此实现下被忽略。
type einoEmbedder struct {
	inner einoembedding.Embedder
	dim   int
}

func newEinoEmbedder(inner einoembedding.Embedder, dim int) *einoEmbedder {
	return &einoEmbedder{inner: inner, dim: dim}
}

func (e *einoEmbedder) Dimensions() int { return e.dim }

func (e *einoEmbedder) EmbedText(ctx context.Context, text string, _ repository.TextType) ([]float32, error) {
	vectors, err := e.inner.EmbedStrings(ctx, []string{CleanText(text)})
	if err != nil {
		return nil, xerr.Newf(xerr.CodeEmbeddingFailed, "向量化失败: %v", err)
	}
	if len(vectors) == 0 {
		return nil, xerr.Newf(xerr.CodeEmbeddingFailed, "向量化返回空结果")
	}
	out := make([]float32, len(vectors[0]))
	for i, v := range vectors[0] {
		out[i] = float32(v)
	}
	return out, nil
}

func (e *einoEmbedder) EmbedImage(ctx context.Context, _ string) ([]float32, error) {
	return nil, xerr.Newf(xerr.CodeEmbeddingFailed, "当前提供商不支持图片向量化")
}
