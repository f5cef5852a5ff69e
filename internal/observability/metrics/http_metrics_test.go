package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGinMiddlewareCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newHTTPMetrics(prometheus.NewRegistry(), Config{ServiceName: "estate"})

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/reference/countries/:code", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, code := range []string{"SA", "AE"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reference/countries/"+code, nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/reference/countries/:code", "200"))
	assert.Equal(t, float64(2), got)
}
