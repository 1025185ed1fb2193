// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file adds conservative security headers suitable for a JSON API
// served on the shop floor. Even though the daemon binds to localhost, the
// register UI renders responses in an embedded browser, so the usual
// browser-facing protections still apply.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS controls emission of Strict-Transport-Security. Only
	// meaningful when the daemon is fronted by TLS; leave false for plain
	// localhost deployments.
	EnableHSTS bool
	// HSTSMaxAge is the max-age for HSTS. Zero selects a 180-day default.
	HSTSMaxAge time.Duration
	// ContentSecurityPolicy overrides the default restrictive CSP when
	// non-empty.
	ContentSecurityPolicy string
}

// SecurityHeaders returns middleware that sets standard security headers
// on every response:
//
//   - X-Content-Type-Options: nosniff
//   - X-Frame-Options: DENY
//   - Referrer-Policy: no-referrer
//   - Content-Security-Policy: default-src 'none'; frame-ancestors 'none'
//     (overridable; APIs don't serve active content)
//   - Cross-Origin-Opener-Policy / Cross-Origin-Resource-Policy
//   - Strict-Transport-Security when opt.EnableHSTS is set
//
// Headers are written before the handler runs so they apply to error
// responses as well.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	csp := opt.ContentSecurityPolicy
	if csp == "" {
		csp = "default-src 'none'; frame-ancestors 'none'"
	}

	hsts := ""
	if opt.EnableHSTS {
		maxAge := opt.HSTSMaxAge
		if maxAge <= 0 {
			maxAge = 180 * 24 * time.Hour
		}
		hsts = "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) +
			"; includeSubDomains"
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", csp)
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
		if hsts != "" {
			h.Set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}
