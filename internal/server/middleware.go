package server

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
)

// AdminRequired guards operator routes with a shared token. With no
// token configured every admin request is refused.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Admin-Token")
		if s.cfg.AdminToken == "" || token == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Server) OrderCreateRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.orderLimiter.Allow(c.Request.Context(), c.ClientIP()) {
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
