package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	CodeSuccess             = 0
	CodeParamError          = 1000
	CodeAuthFailed          = 1001
	CodePermissionDenied    = 1002
	CodeResourceNotFound    = 1003
	CodeInsufficientCredits = 1004
	CodeConflict            = 1005
	CodeUpstreamError       = 1006
	CodeServerError         = 5000
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:             "success",
	CodeParamError:          "参数错误",
	CodeAuthFailed:          "认证失败",
	CodePermissionDenied:    "权限不足",
	CodeResourceNotFound:    "资源不存在",
	CodeInsufficientCredits: "积分不足",
	CodeConflict:            "操作冲突",
	CodeUpstreamError:       "上游服务异常",
	CodeServerError:         "服务器内部错误",
}

// 错误码对应的 HTTP 状态（支付端点需要真实状态码驱动客户端与重试）
var codeStatus = map[int]int{
	CodeSuccess:             http.StatusOK,
	CodeParamError:          http.StatusBadRequest,
	CodeAuthFailed:          http.StatusUnauthorized,
	CodePermissionDenied:    http.StatusForbidden,
	CodeResourceNotFound:    http.StatusNotFound,
	CodeInsufficientCredits: http.StatusPaymentRequired,
	CodeConflict:            http.StatusConflict,
	CodeUpstreamError:       http.StatusBadGateway,
	CodeServerError:         http.StatusInternalServerError,
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	ErrorWithData(c, code, message, nil)
}

// ErrorWithData 带附加数据的错误响应（如购买积分时回显当前余额）
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	if message == "" {
		message = codeMessages[code]
	}
	status, ok := codeStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	c.JSON(status, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// ParamError 参数错误
func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

// AuthError 认证失败
func AuthError(c *gin.Context, message string) {
	Error(c, CodeAuthFailed, message)
}

// PermissionError 权限不足
func PermissionError(c *gin.Context, message string) {
	Error(c, CodePermissionDenied, message)
}

// NotFoundError 资源不存在
func NotFoundError(c *gin.Context, message string) {
	Error(c, CodeResourceNotFound, message)
}

// CreditsError 积分不足
func CreditsError(c *gin.Context, message string) {
	Error(c, CodeInsufficientCredits, message)
}

// ConflictError 操作冲突（如重复订阅）
func ConflictError(c *gin.Context, message string, data interface{}) {
	ErrorWithData(c, CodeConflict, message, data)
}

// UpstreamError 上游服务异常
func UpstreamError(c *gin.Context, message string) {
	Error(c, CodeUpstreamError, message)
}

// ServerError 服务器内部错误
func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}
