package service

import (
	"context"
	"errors"
	"testing"

	"ragcore/internal/config"
	"ragcore/internal/modules/rag/domain/document"
	"ragcore/internal/modules/rag/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	lastText string
	lastMode repository.TextType
	vector   []float32
	err      error
}

func (f *fakeEmbedder) EmbedText(_ context.Context, text string, textType repository.TextType) ([]float32, error) {
	f.lastText = text
	f.lastMode = textType
	if f.err != nil {
		return nil, f.err
	}
	if f.vector != nil {
		return f.vector, nil
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) EmbedImage(context.Context, string) ([]float32, error) {
	return nil, errors.New("not supported")
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

type fakeVectorStore struct {
	results  []repository.VectorSearchResult
	err      error
	lastTopK int
	inserted []int64
	deleted  []int64
}

func (f *fakeVectorStore) EnsureCollection(context.Context) error { return nil }

func (f *fakeVectorStore) Insert(_ context.Context, chunkID int64, _ []float32) error {
	f.inserted = append(f.inserted, chunkID)
	return nil
}

func (f *fakeVectorStore) Search(_ context.Context, _ []float32, topK int, minSimilarity float32) ([]repository.VectorSearchResult, error) {
	f.lastTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	out := make([]repository.VectorSearchResult, 0, len(f.results))
	for _, r := range f.results {
		if r.Similarity >= minSimilarity {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeVectorStore) Delete(_ context.Context, chunkID int64) error {
	f.deleted = append(f.deleted, chunkID)
	return nil
}

type fakeChunkRepo struct {
	byID    map[int64]document.DocumentChunk
	listErr error
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{byID: make(map[int64]document.DocumentChunk)}
}

func (f *fakeChunkRepo) add(c document.DocumentChunk) { f.byID[c.Id] = c }

func (f *fakeChunkRepo) Insert(_ context.Context, chunk *document.DocumentChunk) error {
	f.byID[chunk.Id] = *chunk
	return nil
}

func (f *fakeChunkRepo) GetByID(_ context.Context, chunkID int64) (*document.DocumentChunk, error) {
	c, ok := f.byID[chunkID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeChunkRepo) ListByDocumentID(_ context.Context, documentID int64) ([]document.DocumentChunk, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []document.DocumentChunk
	for _, c := range f.byID {
		if c.DocumentId == documentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkRepo) DeleteByDocumentID(_ context.Context, documentID int64) error {
	for id, c := range f.byID {
		if c.DocumentId == documentID {
			delete(f.byID, id)
		}
	}
	return nil
}

func testRAGConfig() config.RAGConfig {
	return config.RAGConfig{
		ChunkSize:            800,
		ChunkOverlap:         100,
		MaxChunks:            50000,
		MaxDocumentChars:     50 * 1024 * 1024,
		DefaultTopK:          5,
		DefaultMinSimilarity: 0.35,
		QueryExpandSuffix:    " 的详细信息、背景、事迹",
		StopWords:            testStopWords,
	}
}

func newTestEngine(emb *fakeEmbedder, vs *fakeVectorStore, repo *fakeChunkRepo) *RetrievalEngine {
	return NewRetrievalEngine(emb, vs, repo, testRAGConfig())
}

func TestRetrieveKeywordGateFiltersDocuments(t *testing.T) {
	repo := newFakeChunkRepo()
	// 文档 1 含关键词但相似度偏低，文档 2 相似度高却不含关键词
	repo.add(document.DocumentChunk{Id: 11, DocumentId: 1, ChunkIndex: 0, Content: "公司报销流程说明：先填单再审批。"})
	repo.add(document.DocumentChunk{Id: 21, DocumentId: 2, ChunkIndex: 0, Content: "完全无关的内容，讲的是园艺技巧。"})

	vs := &fakeVectorStore{results: []repository.VectorSearchResult{
		{ChunkID: 21, Similarity: 0.95},
		{ChunkID: 11, Similarity: 0.6},
	}}
	engine := newTestEngine(&fakeEmbedder{}, vs, repo)

	chunks := engine.RetrieveWithThreshold(context.Background(), "报销流程", 5, 0.5)
	require.Len(t, chunks, 1)
	assert.Equal(t, int64(1), chunks[0].DocumentId)
}

func TestRetrieveSimilarityThreshold(t *testing.T) {
	repo := newFakeChunkRepo()
	repo.add(document.DocumentChunk{Id: 11, DocumentId: 1, Content: "报销流程内容"})

	vs := &fakeVectorStore{results: []repository.VectorSearchResult{
		{ChunkID: 11, Similarity: 0.4},
	}}
	engine := newTestEngine(&fakeEmbedder{}, vs, repo)

	assert.Empty(t, engine.RetrieveWithThreshold(context.Background(), "报销流程", 5, 0.9))
	assert.NotEmpty(t, engine.RetrieveWithThreshold(context.Background(), "报销流程", 5, 0.39))
}

func TestRetrieveEmbedErrorReturnsEmpty(t *testing.T) {
	engine := newTestEngine(&fakeEmbedder{err: errors.New("embedding down")}, &fakeVectorStore{}, newFakeChunkRepo())
	chunks := engine.Retrieve(context.Background(), "任意查询内容", 5)
	assert.NotNil(t, chunks)
	assert.Empty(t, chunks)
}

func TestRetrieveSearchErrorReturnsEmpty(t *testing.T) {
	engine := newTestEngine(&fakeEmbedder{}, &fakeVectorStore{err: errors.New("milvus down")}, newFakeChunkRepo())
	assert.Empty(t, engine.Retrieve(context.Background(), "任意查询内容", 5))
}

func TestRetrieveSkipsDanglingVector(t *testing.T) {
	repo := newFakeChunkRepo()
	repo.add(document.DocumentChunk{Id: 11, DocumentId: 1, Content: "报销流程相关内容"})

	// 99 在向量库里有命中但元数据行已不存在
	vs := &fakeVectorStore{results: []repository.VectorSearchResult{
		{ChunkID: 99, Similarity: 0.99},
		{ChunkID: 11, Similarity: 0.8},
	}}
	engine := newTestEngine(&fakeEmbedder{}, vs, repo)

	chunks := engine.RetrieveWithThreshold(context.Background(), "报销流程", 5, 0.5)
	require.Len(t, chunks, 1)
	assert.Equal(t, int64(11), chunks[0].Id)
}

func TestRetrieveShortQueryExpansion(t *testing.T) {
	emb := &fakeEmbedder{}
	engine := newTestEngine(emb, &fakeVectorStore{}, newFakeChunkRepo())

	engine.Retrieve(context.Background(), "张三", 5)
	assert.Equal(t, "张三 的详细信息、背景、事迹", emb.lastText)
	assert.Equal(t, repository.TextTypeQuery, emb.lastMode)

	long := "这是一个超过十个字符的完整查询语句"
	engine.Retrieve(context.Background(), long, 5)
	assert.Equal(t, long, emb.lastText)
}

func TestRetrieveOverfetchesTopKTimesTwo(t *testing.T) {
	vs := &fakeVectorStore{}
	engine := newTestEngine(&fakeEmbedder{}, vs, newFakeChunkRepo())
	engine.Retrieve(context.Background(), "报销流程怎么走啊", 7)
	assert.Equal(t, 14, vs.lastTopK)
}

func TestRetrieveTopKLimitsDocumentCount(t *testing.T) {
	repo := newFakeChunkRepo()
	repo.add(document.DocumentChunk{Id: 11, DocumentId: 1, Content: "报销流程甲"})
	repo.add(document.DocumentChunk{Id: 21, DocumentId: 2, Content: "报销流程乙"})
	repo.add(document.DocumentChunk{Id: 31, DocumentId: 3, Content: "报销流程丙"})

	vs := &fakeVectorStore{results: []repository.VectorSearchResult{
		{ChunkID: 11, Similarity: 0.9},
		{ChunkID: 21, Similarity: 0.8},
		{ChunkID: 31, Similarity: 0.7},
	}}
	engine := newTestEngine(&fakeEmbedder{}, vs, repo)

	chunks := engine.RetrieveWithThreshold(context.Background(), "报销流程", 2, 0.5)
	docs := make(map[int64]bool)
	for _, c := range chunks {
		docs[c.DocumentId] = true
	}
	assert.Len(t, docs, 2)
	assert.True(t, docs[1])
	assert.True(t, docs[2])
	assert.False(t, docs[3])
}

func TestRetrieveExpandsWholeDocumentAndReranks(t *testing.T) {
	repo := newFakeChunkRepo()
	// 命中只落在 11 上，但文档的另一片段 12 也应返回；
	// 12 含完整查询串，重排后应排在前面
	repo.add(document.DocumentChunk{Id: 11, DocumentId: 1, ChunkIndex: 0, Content: "关于流程的一般性描述，不含查询原串。"})
	repo.add(document.DocumentChunk{Id: 12, DocumentId: 1, ChunkIndex: 1, Content: "报销流程的完整说明：报销流程分为三步。"})

	vs := &fakeVectorStore{results: []repository.VectorSearchResult{
		{ChunkID: 11, Similarity: 0.8},
	}}
	engine := newTestEngine(&fakeEmbedder{}, vs, repo)

	chunks := engine.RetrieveWithThreshold(context.Background(), "报销流程", 5, 0.5)
	require.Len(t, chunks, 2)
	assert.Equal(t, int64(12), chunks[0].Id)
	assert.Equal(t, int64(11), chunks[1].Id)
}

func TestRelevanceScoreLengthBands(t *testing.T) {
	engine := newTestEngine(&fakeEmbedder{}, &fakeVectorStore{}, newFakeChunkRepo())
	noKeywords := map[string]struct{}{}

	short := document.DocumentChunk{Content: "太短"}
	mid := document.DocumentChunk{Content: stringOfRunes('字', 100)}
	long := document.DocumentChunk{Content: stringOfRunes('字', 1500)}

	assert.Equal(t, 0.0, engine.relevanceScore(short, "无关查询", noKeywords))
	assert.Equal(t, 0.1, engine.relevanceScore(mid, "无关查询", noKeywords))
	assert.Equal(t, 0.05, engine.relevanceScore(long, "无关查询", noKeywords))
}

func stringOfRunes(r rune, n int) string {
	runes := make([]rune, n)
	for i := range runes {
		runes[i] = r
	}
	return string(runes)
}
