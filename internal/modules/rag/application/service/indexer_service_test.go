package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ragcore/internal/config"
	"ragcore/internal/modules/rag/domain/document"
	"ragcore/internal/modules/rag/domain/repository"
	"ragcore/pkg/util"
	"ragcore/pkg/xerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failAfterEmbedder 前 n 次向量化成功，之后一直失败
type failAfterEmbedder struct {
	fakeEmbedder
	succeedTimes int
	calls        int
}

func (f *failAfterEmbedder) EmbedText(ctx context.Context, text string, textType repository.TextType) ([]float32, error) {
	f.calls++
	if f.calls > f.succeedTimes {
		return nil, xerr.ErrEmbeddingFailed
	}
	return f.fakeEmbedder.EmbedText(ctx, text, textType)
}

// orderTrackingVectorStore 记录向量写入相对于元数据写入的顺序
type orderTrackingVectorStore struct {
	fakeVectorStore
	repo      *fakeChunkRepo
	deleteErr error
}

func (o *orderTrackingVectorStore) Insert(ctx context.Context, chunkID int64, vector []float32) error {
	// 向量写入时对应的元数据行必须已经存在
	if _, ok := o.repo.byID[chunkID]; !ok {
		return errors.New("metadata row missing at vector insert time")
	}
	return o.fakeVectorStore.Insert(ctx, chunkID, vector)
}

func (o *orderTrackingVectorStore) Delete(ctx context.Context, chunkID int64) error {
	if o.deleteErr != nil {
		return o.deleteErr
	}
	return o.fakeVectorStore.Delete(ctx, chunkID)
}

func indexerRAGConfig(chunkSize, overlap, maxChars int) config.RAGConfig {
	c := testRAGConfig()
	c.ChunkSize = chunkSize
	c.ChunkOverlap = overlap
	c.MaxDocumentChars = maxChars
	return c
}

func newTestIndexer(t *testing.T, repo *fakeChunkRepo, vs repository.VectorStore, emb repository.Embedder, conf config.RAGConfig) *ChunkIndexer {
	t.Helper()
	idGen, err := util.NewSnowflake(1, 1)
	require.NoError(t, err)
	return NewChunkIndexer(repo, vs, emb, idGen, conf)
}

func TestProcessDocumentHappyPath(t *testing.T) {
	repo := newFakeChunkRepo()
	vs := &orderTrackingVectorStore{repo: repo}
	ix := newTestIndexer(t, repo, vs, &fakeEmbedder{}, indexerRAGConfig(10, 0, 0))

	doc := &document.Document{
		DocumentId: 100,
		Text:       strings.Repeat("a", 35),
		CanChunk:   true,
	}
	n, err := ix.ProcessDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Len(t, repo.byID, 4)
	assert.Len(t, vs.inserted, 4)

	// 片段 id 全局唯一且与行一致
	seen := make(map[int64]bool)
	for _, id := range vs.inserted {
		assert.False(t, seen[id])
		seen[id] = true
		row, ok := repo.byID[id]
		require.True(t, ok)
		assert.Equal(t, int64(100), row.DocumentId)
	}
}

func TestProcessDocumentUnsupported(t *testing.T) {
	ix := newTestIndexer(t, newFakeChunkRepo(), &fakeVectorStore{}, &fakeEmbedder{}, testRAGConfig())
	n, err := ix.ProcessDocument(context.Background(), &document.Document{
		DocumentId: 1,
		Text:       "内容",
		CanChunk:   false,
	})
	assert.Zero(t, n)
	assert.True(t, errors.Is(err, xerr.ErrUnsupportedDocument))
}

func TestProcessDocumentTooLarge(t *testing.T) {
	ix := newTestIndexer(t, newFakeChunkRepo(), &fakeVectorStore{}, &fakeEmbedder{}, indexerRAGConfig(10, 0, 20))
	n, err := ix.ProcessDocument(context.Background(), &document.Document{
		DocumentId: 1,
		Text:       strings.Repeat("a", 21),
		CanChunk:   true,
	})
	assert.Zero(t, n)
	assert.True(t, errors.Is(err, xerr.ErrTooLarge))
}

func TestProcessDocumentEmptyText(t *testing.T) {
	ix := newTestIndexer(t, newFakeChunkRepo(), &fakeVectorStore{}, &fakeEmbedder{}, testRAGConfig())
	n, err := ix.ProcessDocument(context.Background(), &document.Document{
		DocumentId: 1,
		Text:       "",
		CanChunk:   true,
	})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessDocumentPartialFailure(t *testing.T) {
	repo := newFakeChunkRepo()
	emb := &failAfterEmbedder{succeedTimes: 2}
	ix := newTestIndexer(t, repo, &fakeVectorStore{}, emb, indexerRAGConfig(10, 0, 0))

	n, err := ix.ProcessDocument(context.Background(), &document.Document{
		DocumentId: 7,
		Text:       strings.Repeat("a", 50),
		CanChunk:   true,
	})
	require.Error(t, err)
	assert.Equal(t, 2, n)

	var idxErr *document.IndexError
	require.ErrorAs(t, err, &idxErr)
	assert.Equal(t, int64(7), idxErr.DocumentID)
	assert.Equal(t, 2, idxErr.Ordinal)
	assert.True(t, errors.Is(err, xerr.ErrEmbeddingFailed))
}

func TestDeleteDocumentChunks(t *testing.T) {
	repo := newFakeChunkRepo()
	repo.add(document.DocumentChunk{Id: 1, DocumentId: 9, Content: "一"})
	repo.add(document.DocumentChunk{Id: 2, DocumentId: 9, Content: "二"})
	repo.add(document.DocumentChunk{Id: 3, DocumentId: 8, Content: "别的文档"})

	vs := &orderTrackingVectorStore{repo: repo}
	ix := newTestIndexer(t, repo, vs, &fakeEmbedder{}, testRAGConfig())

	require.NoError(t, ix.DeleteDocumentChunks(context.Background(), 9))
	assert.ElementsMatch(t, []int64{1, 2}, vs.deleted)
	assert.Len(t, repo.byID, 1)
	_, survivorKept := repo.byID[3]
	assert.True(t, survivorKept)
}

func TestDeleteDocumentChunksVectorFailureStillDeletesRows(t *testing.T) {
	repo := newFakeChunkRepo()
	repo.add(document.DocumentChunk{Id: 1, DocumentId: 9, Content: "一"})

	vs := &orderTrackingVectorStore{repo: repo, deleteErr: errors.New("milvus down")}
	ix := newTestIndexer(t, repo, vs, &fakeEmbedder{}, testRAGConfig())

	require.NoError(t, ix.DeleteDocumentChunks(context.Background(), 9))
	assert.Empty(t, repo.byID)
}

func TestDeleteDocumentChunksNoRows(t *testing.T) {
	vs := &fakeVectorStore{}
	ix := newTestIndexer(t, newFakeChunkRepo(), vs, &fakeEmbedder{}, testRAGConfig())
	require.NoError(t, ix.DeleteDocumentChunks(context.Background(), 404))
	assert.Empty(t, vs.deleted)
}
