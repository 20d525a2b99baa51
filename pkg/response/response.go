package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeParamError   = 400
	CodeUnauthorized = 401
	CodeNotFound     = 404
	CodeServerError  = 500
	CodeUnavailable  = 503
)

const (
	CodeTransactionNotFound = 1001
	CodeStatusInvalid       = 1002
	CodeBalanceNotEnough    = 1003
	CodeDuplicateRequest    = 1004
	CodeProfileNotFound     = 1005
	CodeAccountBusy         = 1007
)

// ErrorBody 错误响应
type ErrorBody struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// Success 成功响应直接返回业务对象，例如 {"wallet": {...}}
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func Error(c *gin.Context, status, code int, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{Error: message, Code: code})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeParamError, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

func NotFound(c *gin.Context, code int, message string) {
	Error(c, http.StatusNotFound, code, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeServerError, message)
}

// BusinessError 业务规则拒绝（余额不足、状态流转非法等）
func BusinessError(c *gin.Context, code int, message string) {
	Error(c, http.StatusConflict, code, message)
}
