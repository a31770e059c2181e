package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/neatchat/neatchat/ratelimit"
)

// GetRateLimitPolicy handles GET /api/admin/ratelimit: the active tier policy
// table, per endpoint class. Read-only; quotas are fixed at startup.
func GetRateLimitPolicy(c *gin.Context) {
	table := ratelimit.PolicyTable()

	out := gin.H{}
	for class, tiers := range table {
		classOut := gin.H{}
		for tier, limit := range tiers {
			classOut[string(tier)] = gin.H{
				"quota":          limit.Quota,
				"window_seconds": int64(limit.Window.Seconds()),
			}
		}
		out[string(class)] = classOut
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}
