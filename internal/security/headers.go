// Package security provides security middleware for the RiskLens API.
package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeadersMiddleware adds security headers to all responses
func HeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		// JSON and websocket only; nothing is rendered.
		c.Header("Content-Security-Policy", "default-src 'none'; connect-src 'self' ws: wss:; frame-ancestors 'none'")
		c.Header("Cache-Control", "no-store")

		c.Next()
	}
}

// OriginPolicy decides which browser origins may call the API and open
// websocket streams. An empty list or "*" allows every origin.
type OriginPolicy struct {
	origins  map[string]bool
	wildcard bool
}

// NewOriginPolicy builds a policy from a list of exact origins.
func NewOriginPolicy(allowed []string) *OriginPolicy {
	p := &OriginPolicy{origins: make(map[string]bool), wildcard: len(allowed) == 0}
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "*" {
			p.wildcard = true
			continue
		}
		if o != "" {
			p.origins[o] = true
		}
	}
	return p
}

// Allowed reports whether origin may connect. Requests without an Origin
// header are non-browser clients and always pass.
func (p *OriginPolicy) Allowed(origin string) bool {
	return origin == "" || p.wildcard || p.origins[origin]
}

// CheckOrigin adapts the policy to the websocket upgrader hook.
func (p *OriginPolicy) CheckOrigin(r *http.Request) bool {
	return p.Allowed(r.Header.Get("Origin"))
}

// CORSMiddleware handles CORS for API endpoints
func (p *OriginPolicy) CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if origin != "" && p.Allowed(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-Admin-Secret")
			c.Header("Access-Control-Max-Age", "86400")
			c.Header("Vary", "Origin")
			// Credentials never combine with wildcard origins.
			if !p.wildcard {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SecretMatches compares a presented secret against the configured one in
// constant time. An empty configured secret never matches.
func SecretMatches(presented, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
