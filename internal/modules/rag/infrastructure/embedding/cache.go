package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"ragcore/internal/modules/rag/domain/repository"
	"ragcore/pkg/redis"
	"ragcore/pkg/zlog"

	"go.uber.org/zap"
)

// CachedEmbedder 为向量化提供商加一层Redis缓存。
// 相同文本的重复向量化直接命中缓存，降低API费用和延迟。
// Redis不可用或读写出错时直接穿透到底层提供商，不影响主流程。
type CachedEmbedder struct {
	inner repository.Embedder
	ttl   time.Duration
}

func NewCachedEmbedder(inner repository.Embedder, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedEmbedder{inner: inner, ttl: ttl}
}

func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

func (c *CachedEmbedder) EmbedText(ctx context.Context, text string, textType repository.TextType) ([]float32, error) {
	key := cacheKey(string(textType), text)
	if vec, ok := c.get(ctx, key); ok {
		return vec, nil
	}

	vec, err := c.inner.EmbedText(ctx, text, textType)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, vec)
	return vec, nil
}

// 图片向量化不走缓存，base64 内容做key成本过高且重复率低
func (c *CachedEmbedder) EmbedImage(ctx context.Context, imageBase64 string) ([]float32, error) {
	return c.inner.EmbedImage(ctx, imageBase64)
}

func (c *CachedEmbedder) get(ctx context.Context, key string) ([]float32, bool) {
	if !redis.IsConnected() {
		return nil, false
	}
	raw, err := redis.Get(ctx, key)
	if err != nil || raw == "" {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		zlog.Warn("向量缓存反序列化失败", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) put(ctx context.Context, key string, vec []float32) {
	if !redis.IsConnected() {
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := redis.Set(ctx, key, string(raw), c.ttl); err != nil {
		zlog.Warn("向量缓存写入失败", zap.String("key", key), zap.Error(err))
	}
}

func cacheKey(mode, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + mode + ":" + hex.EncodeToString(sum[:])
}
