package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/neatchat/neatchat/common/helper"
)

// RequestId tags every request with a sortable identifier, echoes it back
// in a response header and threads it through the request context so the
// provider round trip can be correlated with the client call.
func RequestId() func(c *gin.Context) {
	return func(c *gin.Context) {
		id := helper.GenRequestID()
		c.Set(helper.RequestIdKey, id)
		ctx := context.WithValue(c.Request.Context(), helper.RequestIdKey, id)
		c.Request = c.Request.WithContext(ctx)
		c.Header(helper.RequestIdKey, id)
		c.Next()
	}
}
