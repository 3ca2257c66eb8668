package httputil

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ParseLimit parses the limit query parameter. It defaults to def and cannot
// exceed max.
func ParseLimit(c *gin.Context, def, max int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return def, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > max {
		return 0, fmt.Errorf("invalid limit parameter: must be between 1 and %d", max)
	}
	return limit, nil
}
