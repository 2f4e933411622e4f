package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"ragcore/internal/modules/rag/domain/repository"
)

// MockEmbedder 基于内容哈希生成确定性单位向量，
// 相同文本产生相同向量，用于本地开发和测试。
type MockEmbedder struct {
	dim int
}

func NewMockEmbedder(dim int) *MockEmbedder {
	if dim <= 0 {
		dim = 1024
	}
	return &MockEmbedder{dim: dim}
}

func (m *MockEmbedder) Dimensions() int { return m.dim }

func (m *MockEmbedder) EmbedText(_ context.Context, text string, textType repository.TextType) ([]float32, error) {
	return m.deterministic(string(textType) + "|" + text), nil
}

func (m *MockEmbedder) EmbedImage(_ context.Context, imageBase64 string) ([]float32, error) {
	return m.deterministic("image|" + imageBase64), nil
}

func (m *MockEmbedder) deterministic(seedText string) []float32 {
	vec := make([]float32, m.dim)
	seed := sha256.Sum256([]byte(seedText))
	var norm float64
	for i := 0; i < m.dim; i++ {
		block := sha256.Sum256(append(seed[:], byte(i), byte(i>>8)))
		bits := binary.BigEndian.Uint32(block[:4])
		v := float32(bits)/float32(math.MaxUint32)*2 - 1
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}
