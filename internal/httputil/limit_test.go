package httputil_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/allisson/posoffline/internal/httputil"
)

func TestParseLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name          string
		url           string
		expectedLimit int
		expectError   bool
	}{
		{name: "default value", url: "/", expectedLimit: 50},
		{name: "custom value", url: "/?limit=20", expectedLimit: 20},
		{name: "max limit", url: "/?limit=200", expectedLimit: 200},
		{name: "limit zero", url: "/?limit=0", expectError: true},
		{name: "limit exceeds max", url: "/?limit=201", expectError: true},
		{name: "limit not an integer", url: "/?limit=xyz", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request, _ = http.NewRequest(http.MethodGet, tt.url, nil)

			limit, err := httputil.ParseLimit(c, 50, 200)

			if tt.expectError {
				assert.EqualError(t, err, "invalid limit parameter: must be between 1 and 200")
				assert.Equal(t, 0, limit)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expectedLimit, limit)
		})
	}
}
