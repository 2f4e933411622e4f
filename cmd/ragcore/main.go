package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ragcore/internal/config"
	"ragcore/internal/initial"
	"ragcore/internal/modules/rag/application/service"
	"ragcore/internal/modules/rag/infrastructure/embedding"
	"ragcore/internal/modules/rag/infrastructure/llm"
	"ragcore/internal/modules/rag/infrastructure/mq/kafka"
	"ragcore/internal/modules/rag/infrastructure/persistence"
	"ragcore/internal/modules/rag/infrastructure/queue"
	"ragcore/internal/modules/rag/infrastructure/vectordb"
	"ragcore/pkg/redis"
	"ragcore/pkg/util"
	"ragcore/pkg/zlog"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置（日志随 zlog 包初始化）
	conf := config.GetConfig()
	defer zlog.Sync()
	defer redis.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. 基础设施
	if initial.MilvusClient == nil {
		zlog.Fatal("Milvus 未配置，无法启动")
	}
	vectors := vectordb.NewMilvusStore(initial.MilvusClient, conf.MilvusConfig)
	if err := vectors.EnsureCollection(ctx); err != nil {
		zlog.Fatal("向量集合初始化失败: " + err.Error())
	}

	embedder, err := embedding.NewEmbedder(ctx, conf.AIConfig.Embedding)
	if err != nil {
		zlog.Fatal("向量化提供商初始化失败: " + err.Error())
	}
	if ttl := conf.AIConfig.Embedding.CacheTTLSeconds; ttl > 0 {
		embedder = embedding.NewCachedEmbedder(embedder, time.Duration(ttl)*time.Second)
	}

	idGen, err := util.NewSnowflake(1, 1)
	if err != nil {
		zlog.Fatal("id 生成器初始化失败: " + err.Error())
	}

	chunkRepo := persistence.NewChunkRepositoryImpl(initial.GormDB)
	eventRepo := persistence.NewIngestEventRepositoryImpl(initial.GormDB)

	// 3. 应用服务
	indexer := service.NewChunkIndexer(chunkRepo, vectors, embedder, idGen, conf.RAGConfig)
	retrieval := service.NewRetrievalEngine(embedder, vectors, chunkRepo, conf.RAGConfig)
	ingest := service.NewAsyncIngestService(eventRepo)

	var qa *service.QAService
	if chatModel, meta, err := llm.NewChatModelFromConfig(ctx, conf); err != nil {
		zlog.Warn("对话模型未就绪，问答服务不可用", zap.Error(err))
	} else {
		qa = service.NewQAService(retrieval, chatModel, meta.Model)
		zlog.Info("问答服务已就绪", zap.String("provider", meta.Provider), zap.String("model", meta.Model))
	}

	// 4. 异步入库链路（未配置 Kafka 时跳过）
	if len(conf.KafkaConfig.Brokers) > 0 {
		startIngestPipeline(ctx, conf, eventRepo, indexer)
	} else {
		zlog.Warn("Kafka 未配置，异步入库链路不启动")
	}

	go runConsole(ctx, ingest, retrieval, qa)
	zlog.Info("ragcore 已启动")

	// 5. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("正在关闭...")
	cancel()
	zlog.Info("已关闭")
}

func startIngestPipeline(ctx context.Context, conf *config.Config, eventRepo *persistence.IngestEventRepositoryImpl, indexer *service.ChunkIndexer) {
	pub, err := kafka.NewSaramaPublisher(kafka.PublisherConfig{
		Brokers:  conf.KafkaConfig.Brokers,
		ClientID: conf.KafkaConfig.ClientID,
	})
	if err != nil {
		zlog.Fatal("kafka publisher 初始化失败: " + err.Error())
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:  conf.KafkaConfig.Brokers,
		GroupID:  conf.KafkaConfig.ConsumerGroupID,
		Topics:   []string{conf.KafkaConfig.IngestTopic},
		ClientID: conf.KafkaConfig.ClientID,
	})
	if err != nil {
		zlog.Fatal("kafka consumer 初始化失败: " + err.Error())
	}

	relay := queue.NewOutboxRelay(eventRepo, pub, conf.KafkaConfig.IngestTopic, 200, 500*time.Millisecond)
	worker := queue.NewIngestConsumerWorker(consumer, eventRepo, indexer)

	go func() {
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			zlog.Error(fmt.Sprintf("outbox relay 退出: %v", err))
		}
	}()
	go func() {
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			zlog.Error(fmt.Sprintf("ingest worker 退出: %v", err))
		}
	}()

	zlog.Info("异步入库链路已启动",
		zap.Strings("brokers", conf.KafkaConfig.Brokers),
		zap.String("topic", conf.KafkaConfig.IngestTopic))
}
