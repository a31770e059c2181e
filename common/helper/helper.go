package helper

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/neatchat/neatchat/common/random"
)

const RequestIdKey = "X-Neatchat-Request-Id"

// GenRequestID generates a sortable per-request identifier.
func GenRequestID() string {
	return GetTimeString() + random.GetRandomNumberString(8)
}

// GetTimestamp get current timestamp in seconds
func GetTimestamp() int64 {
	return time.Now().Unix()
}

func GetTimeString() string {
	now := time.Now()
	return fmt.Sprintf("%s%d", now.Format("20060102150405"), now.UnixNano()%1e9)
}

// CalcElapsedTime return the elapsed time in milliseconds (ms)
func CalcElapsedTime(start time.Time) int64 {
	elapsed := time.Since(start)
	ms := elapsed.Milliseconds()
	if ms == 0 && elapsed > 0 {
		// Ensure non-zero latency for sub-millisecond operations so UI does not show 0
		return 1
	}
	return ms
}

// MessageWithRequestId appends the request id to user-facing error messages
// so support can correlate reports with logs.
func MessageWithRequestId(message string, id string) string {
	if id == "" {
		return message
	}
	return fmt.Sprintf("%s (request id: %s)", message, id)
}

// GetRequestID fetches the request id previously attached by the RequestId middleware.
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIdKey)
}
