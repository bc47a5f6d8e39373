package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogMiddleware logs mutating API requests
func RequestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for GET requests
		if c.Request.Method == "GET" {
			c.Next()
			return
		}

		start := time.Now()

		c.Next()

		username, _ := c.Get("username")
		if username == nil {
			username = "-"
		}

		log.Printf("[HTTP] %s %s user=%v status=%d duration=%s",
			c.Request.Method, c.Request.URL.Path, username,
			c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}
