package middleware

import (
	"net/http"
	"strings"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Logging())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, RequestIDFrom(c))
	})
	return r
}

func TestRequestID_Generated(t *testing.T) {
	r := setupRouter()

	req, _ := http.NewRequest("GET", "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get(headerRequestID)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, w.Body.String())
}

func TestRequestID_Propagated(t *testing.T) {
	r := setupRouter()

	req, _ := http.NewRequest("GET", "/ping", nil)
	req.Header.Set(headerRequestID, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(headerRequestID))
	assert.Equal(t, "abc-123", w.Body.String())
}

func TestRequestID_ReplacesUnsafeValues(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"log line injection", "abc\nlevel=error msg=forged"},
		{"spaces", "abc 123"},
		{"too long", strings.Repeat("a", maxRequestIDLen+1)},
		{"non ascii", "req-\u00e9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter()

			req, _ := http.NewRequest("GET", "/ping", nil)
			req.Header[headerRequestID] = []string{tt.id}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			id := w.Header().Get(headerRequestID)
			assert.NotEqual(t, tt.id, id)
			assert.Len(t, id, 36)
			assert.Equal(t, id, w.Body.String())
		})
	}
}

func TestRequestIDFrom_OutsideMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, RequestIDFrom(c))
}
