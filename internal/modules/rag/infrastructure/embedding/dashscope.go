package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"ragcore/internal/modules/rag/domain/repository"
	"ragcore/pkg/xerr"
	"ragcore/pkg/zlog"

	"go.uber.org/zap"
)

// DashScope 原生模式向量化客户端。
//
// API 选择策略：
//   - 文本向量化：text-embedding-v4（支持 100+ 语种，8192 Token，text_type 区分 query/document）
//   - 图片向量化：tongyi-embedding-vision-plus（多模态向量 API）
//
// 请求/响应均为强类型结构体，避免动态 JSON 拼装导致的字段缺失类运行期错误。
type DashScopeEmbedder struct {
	apiKey     string
	baseURL    string
	textModel  string
	imageModel string
	dim        int
	httpClient *http.Client
}

const (
	dashScopeDefaultBaseURL = "https://dashscope.aliyuncs.com/api/v1"
	dashScopeTextModel      = "text-embedding-v4"
	dashScopeImageModel     = "tongyi-embedding-vision-plus"

	textEmbeddingPath       = "/services/embeddings/text-embedding/text-embedding"
	multimodalEmbeddingPath = "/services/embeddings/multimodal-embedding/multimodal-embedding"
)

type textEmbeddingRequest struct {
	Model      string                  `json:"model"`
	Input      textEmbeddingInput      `json:"input"`
	Parameters textEmbeddingParameters `json:"parameters"`
}

type textEmbeddingInput struct {
	Texts []string `json:"texts"`
}

type textEmbeddingParameters struct {
	Dimension int    `json:"dimension"`
	TextType  string `json:"text_type"`
}

type multimodalEmbeddingRequest struct {
	Model string                   `json:"model"`
	Input multimodalEmbeddingInput `json:"input"`
}

type multimodalEmbeddingInput struct {
	Contents []multimodalContent `json:"contents"`
}

type multimodalContent struct {
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

type embeddingResponse struct {
	RequestID string           `json:"request_id"`
	Code      string           `json:"code"`
	Message   string           `json:"message"`
	Output    *embeddingOutput `json:"output"`
}

type embeddingOutput struct {
	Embeddings []embeddingItem `json:"embeddings"`
}

type embeddingItem struct {
	TextIndex int       `json:"text_index"`
	Embedding []float32 `json:"embedding"`
}

// NewDashScopeEmbedder 创建客户端。连接超时 30s，读取超时 60s。
func NewDashScopeEmbedder(apiKey, baseURL string, dim int, timeout time.Duration) *DashScopeEmbedder {
	if baseURL == "" {
		baseURL = dashScopeDefaultBaseURL
	}
	if dim <= 0 {
		dim = 1024
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &DashScopeEmbedder{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		textModel:  dashScopeTextModel,
		imageModel: dashScopeImageModel,
		dim:        dim,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
			},
		},
	}
}

func (d *DashScopeEmbedder) Dimensions() int { return d.dim }

// EmbedText 文本向量化。textType 区分查询与文档入库两种用途。
func (d *DashScopeEmbedder) EmbedText(ctx context.Context, text string, textType repository.TextType) ([]float32, error) {
	clean := CleanText(text)
	req := textEmbeddingRequest{
		Model: d.textModel,
		Input: textEmbeddingInput{Texts: []string{clean}},
		Parameters: textEmbeddingParameters{
			Dimension: d.dim,
			TextType:  string(textType),
		},
	}
	return d.post(ctx, textEmbeddingPath, req)
}

// EmbedImage 图片向量化，imageBase64 为 base64 编码的图片内容
func (d *DashScopeEmbedder) EmbedImage(ctx context.Context, imageBase64 string) ([]float32, error) {
	req := multimodalEmbeddingRequest{
		Model: d.imageModel,
		Input: multimodalEmbeddingInput{
			Contents: []multimodalContent{{Image: imageBase64}},
		},
	}
	return d.post(ctx, multimodalEmbeddingPath, req)
}

func (d *DashScopeEmbedder) post(ctx context.Context, path string, payload any) ([]float32, error) {
	if strings.TrimSpace(d.apiKey) == "" {
		return nil, xerr.Newf(xerr.CodeEmbeddingFailed, "DashScope API Key 未配置")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, xerr.Newf(xerr.CodeEmbeddingFailed, "构建请求失败: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, xerr.Newf(xerr.CodeEmbeddingFailed, "构建请求失败: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)
	// 禁用压缩，避免内容被中间层修改
	httpReq.Header.Set("Accept-Encoding", "identity")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		zlog.Error("向量化请求失败", zap.Error(err))
		return nil, xerr.Newf(xerr.CodeEmbeddingFailed, "DashScope API调用失败: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerr.Newf(xerr.CodeEmbeddingFailed, "读取响应失败: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, xerr.Newf(xerr.CodeEmbeddingFailed, "API响应失败，状态码：%d，响应体：%s", resp.StatusCode, string(respBody))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, xerr.Newf(xerr.CodeEmbeddingFailed, "解析响应失败: %v", err)
	}
	if parsed.Output == nil || len(parsed.Output.Embeddings) == 0 {
		return nil, xerr.Newf(xerr.CodeEmbeddingFailed, "响应无embeddings字段: %s %s", parsed.Code, parsed.Message)
	}

	vector := parsed.Output.Embeddings[0].Embedding
	zlog.Debug("成功提取向量数据", zap.Int("dim", len(vector)), zap.String("request_id", parsed.RequestID))
	return vector, nil
}

var (
	controlCharsRe = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F\x{200B}-\x{200D}\x{FEFF}]`)
	lineBreaksRe   = regexp.MustCompile("[\r\n\t]")
	multiSpaceRe   = regexp.MustCompile(`\s+`)
)

// CleanText 清洗送往向量化接口的文本：去除不可见控制字符、折叠空白，
// 兜底返回非空占位内容，避免提供商拒绝空输入。
func CleanText(text string) string {
	clean := controlCharsRe.ReplaceAllString(text, "")
	clean = lineBreaksRe.ReplaceAllString(clean, " ")
	clean = strings.ReplaceAll(clean, "　", " ")
	clean = strings.TrimSpace(multiSpaceRe.ReplaceAllString(clean, " "))
	if clean == "" {
		return "无有效内容"
	}
	return clean
}
