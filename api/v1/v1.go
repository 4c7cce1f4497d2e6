package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func HandleSuccess(ctx *gin.Context, data interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	resp := Response{Code: errorCodeMap[ErrSuccess], Message: ErrSuccess.Error(), Data: data}
	ctx.JSON(http.StatusOK, resp)
}

func HandleError(ctx *gin.Context, httpCode int, err error, data interface{}) {
	if data == nil {
		data = map[string]string{}
	}
	code, ok := Code(err)
	if !ok {
		ctx.JSON(httpCode, Response{Code: 500, Message: "unknown error", Data: data})
		return
	}
	ctx.JSON(httpCode, Response{Code: code, Message: err.Error(), Data: data})
}

type Error struct {
	Code    int
	Message string
}

func (e Error) Error() string {
	return e.Message
}

var (
	errorCodeMap = map[error]int{}
	// 按声明顺序保存，保证 errors.Is 匹配结果稳定
	declared []error
)

func newError(code int, msg string) error {
	err := errors.New(msg)
	errorCodeMap[err] = code
	declared = append(declared, err)
	return err
}

// Code 返回 err 链上第一个已声明错误的业务码
func Code(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	if c, ok := errorCodeMap[err]; ok {
		return c, true
	}
	for _, e := range declared {
		if errors.Is(err, e) {
			return errorCodeMap[e], true
		}
	}
	return 0, false
}

// HTTPStatus 业务码分段映射到 HTTP 状态码：
// 1xxx 参数错误 400，2xxx 不存在 404，3xxx 状态冲突 409，4xxx 无权限 403，其余 500
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	code, ok := Code(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch {
	case code >= 100 && code < 600:
		return code
	case code >= 1000 && code < 2000:
		return http.StatusBadRequest
	case code >= 2000 && code < 3000:
		return http.StatusNotFound
	case code >= 3000 && code < 4000:
		return http.StatusConflict
	case code >= 4000 && code < 5000:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
