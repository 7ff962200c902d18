package util

import "github.com/gin-gonic/gin"

// ClientKey is the coarse origin fingerprint a challenge session and its
// cooldown buckets are bound to.
func ClientKey(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}
