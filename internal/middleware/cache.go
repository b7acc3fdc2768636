package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore forbids caching of the response. Applied to exam paper and
// session state endpoints so intermediaries never serve stale answers
// or question orders.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
