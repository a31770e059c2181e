package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/neatchat/neatchat/ratelimit"
)

// rateLimit builds the middleware for one endpoint class. The class is fixed
// when the route table is built; nothing about the request can move a route
// to a cheaper pool.
func rateLimit(gw *ratelimit.Gateway, class ratelimit.EndpointClass) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := GetIdentity(c)
		decision := gw.Admit(c.Request.Context(), identity, class)

		if decision.Limit >= 0 {
			c.Header("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
			if !decision.ResetAt.IsZero() {
				c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
			}
		}

		if !decision.Allowed {
			retryAfter := int64(time.Until(decision.ResetAt).Seconds()) + 1
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			AbortWithError(c, http.StatusTooManyRequests,
				errors.Errorf("rate limit exceeded for %s, retry after %ds", class, retryAfter))
			return
		}
		c.Next()
	}
}

// Per-class constructors, bound to routes at startup.

func InferenceRateLimit(gw *ratelimit.Gateway) gin.HandlerFunc {
	return rateLimit(gw, ratelimit.ClassInference)
}

func StorageRateLimit(gw *ratelimit.Gateway) gin.HandlerFunc {
	return rateLimit(gw, ratelimit.ClassStorage)
}

func CrudRateLimit(gw *ratelimit.Gateway) gin.HandlerFunc {
	return rateLimit(gw, ratelimit.ClassCrud)
}

func AdminRateLimit(gw *ratelimit.Gateway) gin.HandlerFunc {
	return rateLimit(gw, ratelimit.ClassAdmin)
}
