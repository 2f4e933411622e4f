package config

import (
	"log"

	"github.com/BurntSushi/toml"
)

type MainConfig struct {
	AppName string `toml:"appName"`
}

type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

type LogConfig struct {
	LogPath string `toml:"logPath"`
}

type MilvusConfig struct {
	Address        string `toml:"address"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	DBName         string `toml:"dbName"`
	CollectionName string `toml:"collectionName"`
	VectorDim      int    `toml:"vectorDim"`
	MetricType     string `toml:"metricType"` // COSINE 或 L2
	IndexType      string `toml:"indexType"`  // IVF_FLAT 或 AUTOINDEX
	Nlist          int    `toml:"nlist"`
	Nprobe         int    `toml:"nprobe"`
}

type KafkaConfig struct {
	Brokers         []string `toml:"brokers"`
	ClientID        string   `toml:"clientID"`
	IngestTopic     string   `toml:"ingestTopic"`
	ConsumerGroupID string   `toml:"consumerGroupID"`
}

type RedisConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"poolSize"`
	MinIdleConns int    `toml:"minIdleConns"`
}

type AIEmbeddingConfig struct {
	Provider        string `toml:"provider"` // mock / dashscope / openai / ark
	APIKey          string `toml:"apiKey"`
	BaseURL         string `toml:"baseURL"`
	Model           string `toml:"model"`
	Dimensions      int    `toml:"dimensions"`
	TimeoutSeconds  int    `toml:"timeoutSeconds"`
	CacheTTLSeconds int    `toml:"cacheTTLSeconds"` // 向量缓存过期时间，0 表示不缓存
}

type AIChatModelConfig struct {
	Provider        string `toml:"provider"`
	APIKey          string `toml:"apiKey"`
	AccessKey       string `toml:"accessKey"`
	SecretKey       string `toml:"secretKey"`
	BaseURL         string `toml:"baseURL"`
	Region          string `toml:"region"`
	Model           string `toml:"model"`
	TimeoutSeconds  int    `toml:"timeoutSeconds"`
	RetryTimes      int    `toml:"retryTimes"`
	ByAzure         bool   `toml:"byAzure"`
	AzureAPIVersion string `toml:"azureApiVersion"`
}

type AIConfig struct {
	Embedding AIEmbeddingConfig `toml:"embedding"`
	ChatModel AIChatModelConfig `toml:"chatModel"`
}

// RAGConfig 切片与检索策略参数。切片大小/重叠是策略选择而非算法契约，保持可注入。
type RAGConfig struct {
	ChunkSize            int      `toml:"chunkSize"`            // 默认 800
	ChunkOverlap         int      `toml:"chunkOverlap"`         // 默认 100
	MaxChunks            int      `toml:"maxChunks"`            // 切割安全上限，默认 50000
	MaxDocumentChars     int      `toml:"maxDocumentChars"`     // 单文档字符上限，默认 50M
	DefaultTopK          int      `toml:"defaultTopK"`          // 默认 5
	DefaultMinSimilarity float64  `toml:"defaultMinSimilarity"` // 默认 0.35
	QueryExpandSuffix    string   `toml:"queryExpandSuffix"`    // 短查询扩展后缀
	DisableCJKNgram      bool     `toml:"disableCJKNgram"`      // 关闭中文 2-3 字符 n-gram 扩展（非中文语料可关闭）
	StopWords            []string `toml:"stopWords"`
}

type Config struct {
	MainConfig   `toml:"mainConfig"`
	MysqlConfig  `toml:"mysqlConfig"`
	LogConfig    `toml:"logConfig"`
	MilvusConfig `toml:"milvusConfig"`
	KafkaConfig  `toml:"kafkaConfig"`
	RedisConfig  `toml:"redisConfig"`
	AIConfig     `toml:"aiConfig"`
	RAGConfig    `toml:"ragConfig"`
}

var config *Config

func LoadConfig() error {
	configPath := "configs/config_local.toml"
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		log.Printf("加载配置文件失败: %v, 尝试使用默认设置", err)
		return err
	}
	return nil
}

func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		_ = LoadConfig()
		applyDefaults(config)
	}
	return config
}

func applyDefaults(c *Config) {
	if c.RAGConfig.ChunkSize <= 0 {
		c.RAGConfig.ChunkSize = 800
	}
	if c.RAGConfig.ChunkOverlap <= 0 {
		c.RAGConfig.ChunkOverlap = 100
	}
	if c.RAGConfig.MaxChunks <= 0 {
		c.RAGConfig.MaxChunks = 50000
	}
	if c.RAGConfig.MaxDocumentChars <= 0 {
		c.RAGConfig.MaxDocumentChars = 50 * 1024 * 1024
	}
	if c.RAGConfig.DefaultTopK <= 0 {
		c.RAGConfig.DefaultTopK = 5
	}
	if c.RAGConfig.DefaultMinSimilarity <= 0 {
		c.RAGConfig.DefaultMinSimilarity = 0.35
	}
	if c.RAGConfig.QueryExpandSuffix == "" {
		c.RAGConfig.QueryExpandSuffix = " 的详细信息、背景、事迹"
	}
	if len(c.RAGConfig.StopWords) == 0 {
		c.RAGConfig.StopWords = []string{
			"的", "是", "一个", "什么", "样", "人", "详细", "信息", "背景", "事迹", "相关", "文件",
		}
	}
	if c.MilvusConfig.VectorDim <= 0 {
		c.MilvusConfig.VectorDim = 1024
	}
	if c.MilvusConfig.CollectionName == "" {
		c.MilvusConfig.CollectionName = "document_chunk_vectors"
	}
	if c.MilvusConfig.MetricType == "" {
		c.MilvusConfig.MetricType = "COSINE"
	}
	if c.MilvusConfig.IndexType == "" {
		c.MilvusConfig.IndexType = "IVF_FLAT"
	}
	if c.MilvusConfig.Nlist <= 0 {
		c.MilvusConfig.Nlist = 128
	}
	if c.MilvusConfig.Nprobe <= 0 {
		c.MilvusConfig.Nprobe = 16
	}
}
