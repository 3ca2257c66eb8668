package http

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// createCORSMiddleware lets a browser-based POS front end call the control API.
// Returns nil when CORS is disabled or no origin can be determined.
//
// With no explicit origins the web client is assumed to be served by the remote
// authority, so its origin is derived from remoteBaseURL. The control API listens
// on the till itself, which makes every cross-origin call a private network
// request; preflights are answered with Access-Control-Allow-Private-Network.
// The API carries no cookies or authorization header, so credentials stay off.
func createCORSMiddleware(enabled bool, allowOriginsStr, remoteBaseURL string, logger *slog.Logger) gin.HandlerFunc {
	if !enabled {
		return nil
	}

	origins := parseOrigins(allowOriginsStr)
	if len(origins) == 0 {
		origin, ok := originOf(remoteBaseURL)
		if !ok {
			logger.Warn("CORS enabled but no origins configured and remote base URL has no origin",
				slog.String("remote_base_url", remoteBaseURL))
			return nil
		}
		origins = []string{origin}
	}

	logger.Info("CORS enabled",
		slog.Int("origin_count", len(origins)),
		slog.Any("origins", origins))

	config := cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{
			"GET",
			"POST",
			"PUT",
			"DELETE",
		},
		AllowHeaders: []string{
			"Content-Type",
			"X-Request-Id",
		},
		ExposeHeaders: []string{
			"X-Request-Id",
		},
		AllowCredentials:    false,
		AllowPrivateNetwork: true,
		MaxAge:              12 * time.Hour,
	}

	return cors.New(config)
}

// parseOrigins splits a comma-separated origin list, trimming whitespace and
// dropping empty entries.
func parseOrigins(originsStr string) []string {
	if originsStr == "" {
		return nil
	}

	parts := strings.Split(originsStr, ",")
	origins := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}

	return origins
}

// originOf reduces a base URL such as "https://erp.example.com:8069/pos" to its
// origin "https://erp.example.com:8069".
func originOf(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	return u.Scheme + "://" + u.Host, true
}
