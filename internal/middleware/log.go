package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"foundryhost/pkg/log"

	"github.com/duke-git/lancet/v2/cryptor"
	"github.com/duke-git/lancet/v2/random"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxLogBody = 4096

// sensitiveFields 请求和响应日志里需要遮盖的字段
var sensitiveFields = map[string]bool{
	"foundryPassword": true,
	"adminKey":        true,
}

func RequestLogMiddleware(logger *log.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		uuid, err := random.UUIdV4()
		if err != nil {
			ctx.Next()
			return
		}
		trace := cryptor.Md5String(uuid)
		logger.WithValue(ctx, zap.String("trace", trace))
		logger.WithValue(ctx, zap.String("request_method", ctx.Request.Method))
		logger.WithValue(ctx, zap.String("request_url", ctx.Request.URL.String()))

		if ctx.Request.Body != nil {
			bodyBytes, _ := ctx.GetRawData()
			ctx.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			logger.WithValue(ctx, zap.String("request_params", redact(bodyBytes)))
		}
		logger.WithContext(ctx).Info("Request")
		ctx.Next()
	}
}

func ResponseLogMiddleware(logger *log.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: ctx.Writer}
		ctx.Writer = blw
		startTime := time.Now()
		ctx.Next()
		duration := time.Since(startTime).String()
		logger.WithContext(ctx).Info("Response",
			zap.Int("status", ctx.Writer.Status()),
			zap.String("response_body", redact(blw.body.Bytes())),
			zap.String("time", duration))
	}
}

type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// redact 遮盖 JSON 中的凭据字段并截断，非 JSON 内容原样截断
func redact(body []byte) string {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err == nil {
		if masked, err := json.Marshal(mask(doc)); err == nil {
			body = masked
		}
	}
	if len(body) > maxLogBody {
		body = body[:maxLogBody]
	}
	return string(body)
}

func mask(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			if sensitiveFields[k] {
				t[k] = "***"
				continue
			}
			t[k] = mask(val)
		}
	case []interface{}:
		for i := range t {
			t[i] = mask(t[i])
		}
	}
	return v
}
