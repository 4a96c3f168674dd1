// Package system holds the logging plumbing shared by the binaries: the zap
// logger setup, request-scoped loggers for gin handlers and test loggers.
package system

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// ReqLoggerKey is the gin context key of the request-scoped logger.
	ReqLoggerKey = "reqLogger"
	// RequestIDHeader is read from incoming requests and echoed on responses.
	RequestIDHeader = "X-Request-Id"
)

// NewLogger builds the production logger, or the development one when debug
// is set. Stacktraces are off and timestamps are RFC3339 UTC under "ts".
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncoderConfig.TimeKey = "ts"
	return cfg.Build()
}

// RequestLogger stores a logger carrying the request id, method and path in
// the gin context. A missing X-Request-Id is generated.
func RequestLogger(base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(RequestIDHeader, rid)
		c.Set(ReqLoggerKey, base.With("requestID", rid, "method", c.Request.Method, "path", c.Request.URL.Path))
		c.Next()
	}
}

// GetReqLogger returns the request-scoped logger, or fallback when the
// context carries none.
func GetReqLogger(c *gin.Context, fallback *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return fallback
	}
	if v, ok := c.Get(ReqLoggerKey); ok {
		if l, ok2 := v.(*zap.SugaredLogger); ok2 {
			return l
		}
	}
	return fallback
}

// ViolationFields returns key/value pairs identifying a violation for
// SugaredLogger.With or Infow calls. Zero ticket ids are omitted.
func ViolationFields(id, ticketID int) []interface{} {
	if ticketID == 0 {
		return []interface{}{"violationID", id}
	}
	return []interface{}{"violationID", id, "ticketID", ticketID}
}
