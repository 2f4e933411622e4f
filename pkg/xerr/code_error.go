package xerr

import "fmt"

// CodeError 自定义错误结构
type CodeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error 实现 error 接口
func (e *CodeError) Error() string {
	return fmt.Sprintf("Code: %d, Message: %s", e.Code, e.Message)
}

// Is 按错误码比较，使 errors.Is 可以匹配同类错误（忽略 message 差异）
func (e *CodeError) Is(target error) bool {
	t, ok := target.(*CodeError)
	return ok && t.Code == e.Code
}

// New 创建新的 CodeError
func New(code int, msg string) *CodeError {
	return &CodeError{Code: code, Message: msg}
}

// Newf 创建带格式化消息的 CodeError
func Newf(code int, format string, args ...any) *CodeError {
	return &CodeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// 常用通用错误码
const (
	OK                  = 200
	BadRequest          = 400
	NotFound            = 404
	InternalServerError = 500
)

// 检索/索引流水线错误码
const (
	CodeUnsupportedDocument = 1001 // 文档不支持切片
	CodeTooLarge            = 1002 // 文档超出大小上限
	CodeOverCapacity        = 1003 // 切割片段数量超出安全上限
	CodeEmbeddingFailed     = 1004 // 向量化服务调用失败，可重试
	CodeVectorStoreFailed   = 1005 // 向量库操作失败，可重试
	CodeNotFound            = 1006 // 片段/文档缺失，删除与检索路径视为空
)

// 常用预定义错误
var (
	ErrSuccess     = New(OK, "Success")
	ErrServerError = New(InternalServerError, "系统错误，请联系工作人员")
	ErrParam       = New(BadRequest, "参数错误")

	ErrUnsupportedDocument = New(CodeUnsupportedDocument, "文档不支持切片")
	ErrTooLarge            = New(CodeTooLarge, "文档过大，无法处理")
	ErrOverCapacity        = New(CodeOverCapacity, "文本片段数量超出限制，请检查输入文本或调整参数")
	ErrEmbeddingFailed     = New(CodeEmbeddingFailed, "向量化失败")
	ErrVectorStoreFailed   = New(CodeVectorStoreFailed, "向量库操作失败")
	ErrNotFound            = New(CodeNotFound, "记录不存在")
)
