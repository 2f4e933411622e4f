package splitter

import (
	"ragcore/pkg/xerr"
	"ragcore/pkg/zlog"

	"go.uber.org/zap"
)

// Chunk 文本片段。StartPos/EndPos 为原文中的 rune 偏移，
// Text == string(runes[StartPos:EndPos])。
type Chunk struct {
	Text     string
	StartPos int
	EndPos   int
	Index    int
}

// TextSplitter 将长文本切割成带重叠的片段，在句子边界附近优化切割点。
// 基于 rune 计数切割，中文等多字节字符不会被截断。
type TextSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	// MaxChunks 单次切割生成片段数上限，超出视为输入异常而非正常终止
	MaxChunks int
}

const (
	defaultChunkSize    = 800
	defaultChunkOverlap = 100
	defaultMaxChunks    = 50000

	// 句子边界搜索窗口（切割候选点前后各 50 个字符）
	boundaryWindow = 50
)

// NewTextSplitter 创建切割器并校正非法参数：overlap 必须小于 chunkSize 且非负
func NewTextSplitter(chunkSize, overlap int) *TextSplitter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &TextSplitter{ChunkSize: chunkSize, ChunkOverlap: overlap, MaxChunks: defaultMaxChunks}
}

// NewSmartSplitter 生产配置：800 字符片段 + 100 字符重叠，
// 适配 text-embedding-v4 的 8192 Token 上限
func NewSmartSplitter() *TextSplitter {
	return NewTextSplitter(defaultChunkSize, defaultChunkOverlap)
}

// Split 切割文本。空文本返回空列表而不是错误。
//
// 片段边界：从 start 开始，候选终点为 min(start+ChunkSize, len)；
// 如果不是文本末尾，在候选点 ±50 字符窗口内寻找句子结束符并吸附。
// 推进：next_start = end - overlap；next_start 不再前进或越过文本末尾时结束，
// 这是 overlap 过大时防止死循环的机制。
func (s *TextSplitter) Split(text string) ([]Chunk, error) {
	if text == "" {
		zlog.Warn("文本为空，跳过切割")
		return []Chunk{}, nil
	}

	runes := []rune(text)
	total := len(runes)
	maxChunks := s.MaxChunks
	if maxChunks <= 0 {
		maxChunks = defaultMaxChunks
	}

	zlog.Info("开始切割文本",
		zap.Int("total_chars", total),
		zap.Int("chunk_size", s.ChunkSize),
		zap.Int("overlap", s.ChunkOverlap))

	step := s.ChunkSize - s.ChunkOverlap
	if step <= 0 {
		step = 1
	}
	estimated := (total + step - 1) / step
	if estimated > 1000 {
		estimated = 1000
	}
	chunks := make([]Chunk, 0, estimated)

	start := 0
	index := 0
	for start < total {
		end := start + s.ChunkSize
		if end > total {
			end = total
		}

		// 最后一个片段不做边界吸附
		if end < total {
			end = findSentenceBoundary(runes, end)
		}

		chunks = append(chunks, Chunk{
			Text:     string(runes[start:end]),
			StartPos: start,
			EndPos:   end,
			Index:    index,
		})
		index++

		if len(chunks) >= maxChunks {
			zlog.Error("生成的文本片段过多，可能存在逻辑错误或文本异常", zap.Int("chunks", len(chunks)))
			return nil, xerr.ErrOverCapacity
		}

		nextStart := end - s.ChunkOverlap
		if nextStart >= total || nextStart <= start {
			break
		}
		start = nextStart
	}

	zlog.Info("切割完成", zap.Int("chunks", len(chunks)))
	return chunks, nil
}

// isSentenceTerminator 句子结束符：。！？\n 及对应英文标点
func isSentenceTerminator(r rune) bool {
	switch r {
	case '。', '！', '？', '\n', '.', '!', '?':
		return true
	}
	return false
}

// findSentenceBoundary 在 position 前后 50 个字符范围内查找句子结束符，
// 优先取 position 之前（含）最近的一个，其后紧接的位置作为边界；
// 之前没有时取之后第一个；都没有时返回原位置。
func findSentenceBoundary(runes []rune, position int) int {
	searchStart := position - boundaryWindow
	if searchStart < 0 {
		searchStart = 0
	}
	searchEnd := position + boundaryWindow
	if searchEnd > len(runes) {
		searchEnd = len(runes)
	}

	lastBoundary := -1
	for i := searchStart; i < searchEnd; i++ {
		if !isSentenceTerminator(runes[i]) {
			continue
		}
		if i <= position {
			lastBoundary = i + 1
		} else if lastBoundary == -1 {
			return i + 1
		}
	}
	if lastBoundary != -1 {
		return lastBoundary
	}
	return position
}
