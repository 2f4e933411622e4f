package service

import (
	"context"
	"sort"
	"strings"

	"ragcore/internal/config"
	"ragcore/internal/modules/rag/domain/document"
	"ragcore/internal/modules/rag/domain/repository"
	"ragcore/pkg/util"
	"ragcore/pkg/zlog"

	"go.uber.org/zap"
)

// RetrievalEngine 四阶段片段检索：查询扩展 → 向量召回 → 文档级
// 评分过滤 → 全文级重排。任一阶段失败都吞掉错误返回空结果，
// 检索降级不应让上层问答链路崩掉。
type RetrievalEngine struct {
	embedder   repository.Embedder
	vectors    repository.VectorStore
	chunks     repository.ChunkRepository
	keywords   *KeywordExtractor
	topK       int
	minSim     float32
	expandSfx  string
	shortQuery int
}

type documentScore struct {
	documentID      int64
	maxSimilarity   float32
	totalSimilarity float32
	matchCount      int
}

func (s *documentScore) addMatch(similarity float32) {
	if similarity > s.maxSimilarity {
		s.maxSimilarity = similarity
	}
	s.totalSimilarity += similarity
	s.matchCount++
}

func (s *documentScore) avgSimilarity() float32 {
	if s.matchCount == 0 {
		return 0
	}
	return s.totalSimilarity / float32(s.matchCount)
}

func NewRetrievalEngine(
	embedder repository.Embedder,
	vectors repository.VectorStore,
	chunks repository.ChunkRepository,
	ragConf config.RAGConfig,
) *RetrievalEngine {
	return &RetrievalEngine{
		embedder:   embedder,
		vectors:    vectors,
		chunks:     chunks,
		keywords:   NewKeywordExtractor(ragConf.StopWords, !ragConf.DisableCJKNgram),
		topK:       ragConf.DefaultTopK,
		minSim:     float32(ragConf.DefaultMinSimilarity),
		expandSfx:  ragConf.QueryExpandSuffix,
		shortQuery: 10,
	}
}

// Retrieve 使用默认相似度阈值检索
func (e *RetrievalEngine) Retrieve(ctx context.Context, query string, topK int) []document.DocumentChunk {
	return e.RetrieveWithThreshold(ctx, query, topK, e.minSim)
}

// RetrieveWithThreshold 检索与 query 相关的片段，按重排得分降序。
// topK 限制的是文档数，命中文档的全部片段都会参与重排返回。
func (e *RetrievalEngine) RetrieveWithThreshold(ctx context.Context, query string, topK int, minSimilarity float32) []document.DocumentChunk {
	queryID := util.GenerateID("qry")
	if topK <= 0 {
		topK = e.topK
	}
	if minSimilarity <= 0 {
		minSimilarity = e.minSim
	}

	// 1. 短查询扩展：只影响向量化输入，关键词与重排仍用原始查询
	expandedQuery := e.expandQuery(query)
	zlog.Info("开始检索",
		zap.String("query_id", queryID),
		zap.String("query", query),
		zap.String("expanded_query", expandedQuery),
		zap.Float32("min_similarity", minSimilarity),
		zap.Int("top_k", topK))

	// 2. 查询向量化
	queryVector, err := e.embedder.EmbedText(ctx, expandedQuery, repository.TextTypeQuery)
	if err != nil {
		zlog.Error("查询向量化失败，返回空结果", zap.String("query_id", queryID), zap.Error(err))
		return []document.DocumentChunk{}
	}

	// 3. 向量召回，超采 topK*2 给文档级过滤留余量
	results, err := e.vectors.Search(ctx, queryVector, topK*2, minSimilarity)
	if err != nil {
		zlog.Error("向量检索失败，返回空结果", zap.String("query_id", queryID), zap.Error(err))
		return []document.DocumentChunk{}
	}

	// 4. 命中按文档聚合评分
	scores := make(map[int64]*documentScore)
	for _, r := range results {
		chunk, err := e.chunks.GetByID(ctx, r.ChunkID)
		if err != nil {
			zlog.Error("片段回表失败，返回空结果", zap.String("query_id", queryID), zap.Int64("chunk_id", r.ChunkID), zap.Error(err))
			return []document.DocumentChunk{}
		}
		if chunk == nil {
			// 向量库里的悬空引用，多见于删除竞态
			zlog.Warn("片段元数据缺失，跳过", zap.String("query_id", queryID), zap.Int64("chunk_id", r.ChunkID))
			continue
		}
		ds, ok := scores[chunk.DocumentId]
		if !ok {
			ds = &documentScore{documentID: chunk.DocumentId}
			scores[chunk.DocumentId] = ds
		}
		ds.addMatch(r.Similarity)
	}

	// 5. 关键词门控 + 相似度阈值 + 文档数截断
	queryKeywords := e.keywords.Extract(query)
	docContents := make(map[int64][]document.DocumentChunk)

	qualified := make([]*documentScore, 0, len(scores))
	for _, ds := range scores {
		zlog.Info("文档评分",
			zap.String("query_id", queryID),
			zap.Int64("document_id", ds.documentID),
			zap.Float32("max_similarity", ds.maxSimilarity),
			zap.Float32("avg_similarity", ds.avgSimilarity()),
			zap.Int("match_count", ds.matchCount))
		if len(queryKeywords) > 0 && !e.documentHasKeyword(ctx, ds.documentID, queryKeywords, docContents) {
			zlog.Info("文档被关键词过滤", zap.String("query_id", queryID), zap.Int64("document_id", ds.documentID))
			continue
		}
		if ds.maxSimilarity < minSimilarity {
			continue
		}
		qualified = append(qualified, ds)
	}
	sort.SliceStable(qualified, func(i, j int) bool {
		return qualified[i].maxSimilarity > qualified[j].maxSimilarity
	})
	if len(qualified) > topK {
		qualified = qualified[:topK]
	}
	if len(qualified) == 0 {
		zlog.Warn("未找到相似文档，返回空结果", zap.String("query_id", queryID))
		return []document.DocumentChunk{}
	}

	// 6. 展开命中文档的全部片段
	allChunks := make([]document.DocumentChunk, 0)
	for _, ds := range qualified {
		chunks, err := e.listDocumentChunks(ctx, ds.documentID, docContents)
		if err != nil {
			zlog.Error("文档片段展开失败，返回空结果", zap.String("query_id", queryID), zap.Int64("document_id", ds.documentID), zap.Error(err))
			return []document.DocumentChunk{}
		}
		allChunks = append(allChunks, chunks...)
	}

	// 7. 重排
	reranked := e.rerank(allChunks, query, queryKeywords)
	zlog.Info("检索完成",
		zap.String("query_id", queryID),
		zap.Int("chunk_count", len(reranked)),
		zap.Int("document_count", len(qualified)))
	return reranked
}

func (e *RetrievalEngine) expandQuery(query string) string {
	if len([]rune(query)) < e.shortQuery {
		return query + e.expandSfx
	}
	return query
}

// documentHasKeyword 把文档全部片段拼成整体做大小写不敏感的包含匹配。
// 关键词可能跨片段边界，所以不能逐片段判断。
func (e *RetrievalEngine) documentHasKeyword(ctx context.Context, documentID int64, keywords map[string]struct{}, cache map[int64][]document.DocumentChunk) bool {
	chunks, err := e.listDocumentChunks(ctx, documentID, cache)
	if err != nil {
		zlog.Warn("关键词过滤读取片段失败", zap.Int64("document_id", documentID), zap.Error(err))
		return false
	}
	var sb strings.Builder
	for i, c := range chunks {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(c.Content)
	}
	return e.keywords.MatchCount(sb.String(), keywords) > 0
}

func (e *RetrievalEngine) listDocumentChunks(ctx context.Context, documentID int64, cache map[int64][]document.DocumentChunk) ([]document.DocumentChunk, error) {
	if cached, ok := cache[documentID]; ok {
		return cached, nil
	}
	chunks, err := e.chunks.ListByDocumentID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	cache[documentID] = chunks
	return chunks, nil
}

type scoredChunk struct {
	chunk document.DocumentChunk
	score float64
}

func (e *RetrievalEngine) rerank(chunks []document.DocumentChunk, query string, keywords map[string]struct{}) []document.DocumentChunk {
	scored := make([]scoredChunk, 0, len(chunks))
	for _, c := range chunks {
		scored = append(scored, scoredChunk{
			chunk: c,
			score: e.relevanceScore(c, query, keywords),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	out := make([]document.DocumentChunk, 0, len(scored))
	for _, sc := range scored {
		out = append(out, sc.chunk)
	}
	return out
}

// relevanceScore 片段相关性综合评分：
// 关键词覆盖率 0.6 + 查询整串命中 0.3 + 长度合理性 0.1
func (e *RetrievalEngine) relevanceScore(chunk document.DocumentChunk, query string, keywords map[string]struct{}) float64 {
	score := 0.0

	if len(keywords) > 0 {
		matched := e.keywords.MatchCount(chunk.Content, keywords)
		score += float64(matched) / float64(len(keywords)) * 0.6
	}

	if strings.Contains(strings.ToLower(chunk.Content), strings.ToLower(query)) {
		score += 0.3
	}

	length := len([]rune(chunk.Content))
	switch {
	case length >= 50 && length <= 1000:
		score += 0.1
	case length > 1000:
		score += 0.05
	}

	return score
}
