package render

import (
	"github.com/gin-gonic/gin"
)

// SetStreamHeaders prepares the response for the newline-delimited envelope
// stream. The body is chunked plain text so legacy clients that only
// understand raw content keep working.
func SetStreamHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Transfer-Encoding", "chunked")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
}

// RawData writes bytes to the response and flushes immediately so the client
// sees every envelope as early as the upstream produced it.
func RawData(c *gin.Context, data []byte) (int, error) {
	n, err := c.Writer.Write(data)
	if err != nil {
		return n, err
	}
	c.Writer.Flush()
	return n, nil
}

// StringData is RawData for strings.
func StringData(c *gin.Context, data string) (int, error) {
	return RawData(c, []byte(data))
}
