package middleware

import (
	"fmt"
	"time"

	"codejudge/internal/common/ratelimit"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// RateLimitPolicy caps requests per client IP and per route in one window.
type RateLimitPolicy struct {
	Window   time.Duration `yaml:"window"`
	IPMax    int           `yaml:"ipMax"`
	RouteMax int           `yaml:"routeMax"`
}

// RateLimit rejects requests over policy with 429. A nil service disables it.
func RateLimit(svc *ratelimit.Service, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svc == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		if policy.IPMax > 0 {
			key := fmt.Sprintf("judge:rate:ip:%s:%s", c.ClientIP(), routeKey)
			if err := svc.Allow(ctx, key, policy.IPMax, policy.Window); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		if policy.RouteMax > 0 {
			key := "judge:rate:route:" + routeKey
			if err := svc.Allow(ctx, key, policy.RouteMax, policy.Window); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		c.Next()
	}
}
