/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package middleware

import (
	"crypto/subtle"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/gin-gonic/gin"
	"github.com/jerry-enebeli/bankrec/config"
	"github.com/jerry-enebeli/bankrec/internal/apierror"
)

// KeyHeader carries the server secret key on every request when secure mode is on.
const KeyHeader = "X-Bankrec-Key"

// HealthPath is served without authentication or rate limiting.
const HealthPath = "/"

const defaultLimiterTTL = time.Minute

func abort(c *gin.Context, code apierror.ErrorCode, message string) {
	status := apierror.MapErrorToHTTPStatus(apierror.APIError{Code: code})
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": code})
}

// RateLimitMiddleware limits requests per client IP with tollbooth. It is a no-op unless both the
// rate and the burst are configured.
func RateLimitMiddleware(conf *config.Configuration) gin.HandlerFunc {
	if conf.RateLimit.RequestsPerSecond == nil || conf.RateLimit.Burst == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	ttl := defaultLimiterTTL
	if conf.RateLimit.CleanupIntervalSec != nil && *conf.RateLimit.CleanupIntervalSec > 0 {
		ttl = time.Duration(*conf.RateLimit.CleanupIntervalSec) * time.Second
	}

	lmt := tollbooth.NewLimiter(*conf.RateLimit.RequestsPerSecond, &limiter.ExpirableOptions{
		DefaultExpirationTTL: ttl,
	})
	lmt.SetBurst(*conf.RateLimit.Burst)
	lmt.SetMessage("too many requests")

	return func(c *gin.Context) {
		if c.Request.URL.Path == HealthPath {
			c.Next()
			return
		}
		if httpError := tollbooth.LimitByRequest(lmt, c.Writer, c.Request); httpError != nil {
			abort(c, apierror.ErrRateLimited, httpError.Message)
			return
		}
		c.Next()
	}
}

// SecretKeyAuthMiddleware rejects requests whose KeyHeader does not match the configured secret key.
func SecretKeyAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == HealthPath {
			c.Next()
			return
		}
		conf, err := config.Fetch()
		if err != nil || conf.Server.SecretKey == "" {
			abort(c, apierror.ErrInternalServer, "secret key is not configured")
			return
		}

		presented := c.GetHeader(KeyHeader)
		switch {
		case presented == "":
			abort(c, apierror.ErrUnauthorized, "missing "+KeyHeader+" header")
		case subtle.ConstantTimeCompare([]byte(conf.Server.SecretKey), []byte(presented)) != 1:
			abort(c, apierror.ErrUnauthorized, "invalid secret key")
		default:
			c.Next()
		}
	}
}
