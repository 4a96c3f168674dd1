package apiresponses

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) APIError {
	t.Helper()
	var resp APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		respond func(*gin.Context)
		status  int
		want    APIError
	}{
		{
			name:    "not found",
			respond: func(c *gin.Context) { RespondNotFound(c, "violation", "42") },
			status:  http.StatusNotFound,
			want:    APIError{Error: "violation not found: 42", Code: "NOT_FOUND"},
		},
		{
			name:    "bad request",
			respond: func(c *gin.Context) { RespondBadRequest(c, "invalid severity") },
			status:  http.StatusBadRequest,
			want:    APIError{Error: "invalid severity", Code: "BAD_REQUEST"},
		},
		{
			name:    "bad request details",
			respond: func(c *gin.Context) { RespondBadRequestWithDetails(c, "invalid from", "expected RFC3339") },
			status:  http.StatusBadRequest,
			want:    APIError{Error: "invalid from", Code: "BAD_REQUEST", Details: "expected RFC3339"},
		},
		{
			name:    "unavailable",
			respond: func(c *gin.Context) { RespondServiceUnavailable(c, "sla monitor", "no successful poll yet") },
			status:  http.StatusServiceUnavailable,
			want:    APIError{Error: "service unavailable: sla monitor", Code: "SERVICE_UNAVAILABLE", Details: "no successful poll yet"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			tt.respond(c)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.want, decode(t, w))
		})
	}
}

func TestRespondInternalErrorLogsAndSanitizes(t *testing.T) {
	core, recorded := observer.New(zap.ErrorLevel)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondInternalError(c, "encode snapshot", errors.New("secret detail"), zap.New(core).Sugar())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "failed to encode snapshot", resp.Error)
	assert.NotContains(t, w.Body.String(), "secret detail")
	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "Failed to encode snapshot", recorded.All()[0].Message)
}

func TestRespondOK(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondOK(c, gin.H{"status": "ok"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
