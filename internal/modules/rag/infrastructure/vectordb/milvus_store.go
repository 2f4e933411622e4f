package vectordb

import (
	"context"
	"fmt"
	"strings"

	"ragcore/internal/config"
	"ragcore/internal/modules/rag/domain/repository"
	"ragcore/pkg/xerr"
	"ragcore/pkg/zlog"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"
)

const (
	fieldChunkID = "chunk_id"
	fieldVector  = "vector"

	// 底层相似度兜底阈值，调用方未给出时生效
	defaultMinSimilarity = 0.5
)

// MilvusStore 以 chunk_id 为主键的块向量存储。
// 集合内只存主键和向量两列，块内容与元数据在MySQL中，
// 检索命中后按 chunk_id 回表获取。
type MilvusStore struct {
	cli        mclient.Client
	collection string
	dim        int
	metricType entity.MetricType
	indexType  string
	nlist      int
	nprobe     int
}

func NewMilvusStore(cli mclient.Client, conf config.MilvusConfig) *MilvusStore {
	metric := entity.COSINE
	if strings.EqualFold(conf.MetricType, "L2") {
		metric = entity.L2
	}
	indexType := strings.ToUpper(strings.TrimSpace(conf.IndexType))
	if indexType == "" {
		indexType = "IVF_FLAT"
	}
	nlist := conf.Nlist
	if nlist <= 0 {
		nlist = 128
	}
	nprobe := conf.Nprobe
	if nprobe <= 0 {
		nprobe = 16
	}
	collection := strings.TrimSpace(conf.CollectionName)
	if collection == "" {
		collection = "document_chunk_vectors"
	}
	dim := conf.VectorDim
	if dim <= 0 {
		dim = 1024
	}
	return &MilvusStore{
		cli:        cli,
		collection: collection,
		dim:        dim,
		metricType: metric,
		indexType:  indexType,
		nlist:      nlist,
		nprobe:     nprobe,
	}
}

// EnsureCollection 幂等初始化：集合存在则直接加载，不存在则建集合+建索引。
// 重复建索引的报错降级为告警，支持多实例并发启动。
func (s *MilvusStore) EnsureCollection(ctx context.Context) error {
	cols, err := s.cli.ListCollections(ctx)
	if err != nil {
		return xerr.Newf(xerr.CodeVectorStoreFailed, "查询集合列表失败: %v", err)
	}
	exists := false
	for _, c := range cols {
		if c.Name == s.collection {
			exists = true
			break
		}
	}

	if !exists {
		schema := &entity.Schema{
			CollectionName: s.collection,
			Description:    "document chunk vectors",
			Fields: []*entity.Field{
				{
					Name:       fieldChunkID,
					DataType:   entity.FieldTypeInt64,
					PrimaryKey: true,
				},
				{
					Name:       fieldVector,
					DataType:   entity.FieldTypeFloatVector,
					TypeParams: map[string]string{entity.TypeParamDim: fmt.Sprintf("%d", s.dim)},
				},
			},
		}
		if err := s.cli.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			// 并发启动下另一实例可能先建成，当作已存在处理
			if !isAlreadyExistErr(err) {
				return xerr.Newf(xerr.CodeVectorStoreFailed, "创建集合失败: %v", err)
			}
			zlog.Warn("集合已由其他实例创建", zap.String("collection", s.collection))
		}
		zlog.Info("向量集合就绪",
			zap.String("collection", s.collection),
			zap.Int("dim", s.dim),
			zap.String("metric", string(s.metricType)))
	}

	idx, err := s.buildIndex()
	if err != nil {
		return xerr.Newf(xerr.CodeVectorStoreFailed, "构建索引参数失败: %v", err)
	}
	if err := s.cli.CreateIndex(ctx, s.collection, fieldVector, idx, false); err != nil {
		if isAlreadyExistErr(err) {
			zlog.Warn("向量索引已存在，跳过创建", zap.String("collection", s.collection))
		} else {
			return xerr.Newf(xerr.CodeVectorStoreFailed, "创建索引失败: %v", err)
		}
	}

	_ = s.cli.LoadCollection(ctx, s.collection, false)
	return nil
}

func (s *MilvusStore) buildIndex() (entity.Index, error) {
	switch s.indexType {
	case "AUTOINDEX":
		return entity.NewIndexAUTOINDEX(s.metricType)
	default:
		return entity.NewIndexIvfFlat(s.metricType, s.nlist)
	}
}

// Insert 写入单个块向量。维度不匹配直接拒绝，避免污染集合。
func (s *MilvusStore) Insert(ctx context.Context, chunkID int64, vector []float32) error {
	if len(vector) != s.dim {
		return xerr.Newf(xerr.CodeVectorStoreFailed, "向量维度不匹配: got %d, want %d", len(vector), s.dim)
	}
	_, err := s.cli.Insert(
		ctx,
		s.collection,
		"", // partition
		entity.NewColumnInt64(fieldChunkID, []int64{chunkID}),
		entity.NewColumnFloatVector(fieldVector, s.dim, [][]float32{vector}),
	)
	if err != nil {
		return xerr.Newf(xerr.CodeVectorStoreFailed, "向量插入失败: %v", err)
	}
	return nil
}

// Search 近邻检索，按相似度阈值过滤后返回。
// minSimilarity <= 0 时使用默认阈值 0.5。
func (s *MilvusStore) Search(ctx context.Context, vector []float32, topK int, minSimilarity float32) ([]repository.VectorSearchResult, error) {
	if len(vector) != s.dim {
		return nil, xerr.Newf(xerr.CodeVectorStoreFailed, "向量维度不匹配: got %d, want %d", len(vector), s.dim)
	}
	if topK <= 0 {
		topK = 10
	}
	if minSimilarity <= 0 {
		minSimilarity = defaultMinSimilarity
	}

	sp, err := s.searchParam()
	if err != nil {
		return nil, xerr.Newf(xerr.CodeVectorStoreFailed, "构建检索参数失败: %v", err)
	}

	res, err := s.cli.Search(
		ctx,
		s.collection,
		nil,
		"",
		[]string{fieldChunkID},
		[]entity.Vector{entity.FloatVector(vector)},
		fieldVector,
		s.metricType,
		topK,
		sp,
	)
	if err != nil {
		return nil, xerr.Newf(xerr.CodeVectorStoreFailed, "向量检索失败: %v", err)
	}

	out := make([]repository.VectorSearchResult, 0, topK)
	for _, sr := range res {
		if sr.Err != nil {
			return nil, xerr.Newf(xerr.CodeVectorStoreFailed, "向量检索失败: %v", sr.Err)
		}
		for i := 0; i < sr.ResultCount; i++ {
			chunkID, err := sr.IDs.GetAsInt64(i)
			if err != nil {
				continue
			}
			distance := sr.Scores[i]
			similarity := DeriveSimilarity(string(s.metricType), distance)
			if similarity < minSimilarity {
				continue
			}
			out = append(out, repository.VectorSearchResult{
				ChunkID:    chunkID,
				Distance:   distance,
				Similarity: similarity,
			})
		}
	}
	return out, nil
}

func (s *MilvusStore) searchParam() (entity.SearchParam, error) {
	switch s.indexType {
	case "AUTOINDEX":
		return entity.NewIndexAUTOINDEXSearchParam(1)
	default:
		return entity.NewIndexIvfFlatSearchParam(s.nprobe)
	}
}

// Delete 按主键删除，chunk_id 不存在时也返回成功。
func (s *MilvusStore) Delete(ctx context.Context, chunkID int64) error {
	expr := fmt.Sprintf("%s == %d", fieldChunkID, chunkID)
	if err := s.cli.Delete(ctx, s.collection, "", expr); err != nil {
		return xerr.Newf(xerr.CodeVectorStoreFailed, "向量删除失败: %v", err)
	}
	return nil
}

// DeriveSimilarity 把引擎返回的原始距离分数归一到 [0,1] 相似度。
// COSINE 距离定义为 1 - cos(θ)；L2 用 1/(1+d) 压缩到单位区间。
func DeriveSimilarity(metricType string, distance float32) float32 {
	var sim float32
	switch strings.ToUpper(metricType) {
	case "L2":
		sim = 1.0 / (1.0 + distance)
	default:
		sim = 1.0 - distance
	}
	if sim < 0 {
		sim = 0
	}
	if sim > 1 {
		sim = 1
	}
	return sim
}

func isAlreadyExistErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "exist") || strings.Contains(msg, "duplicate") || strings.Contains(msg, "mismatch")
}
