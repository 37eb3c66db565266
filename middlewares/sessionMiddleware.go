package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/warehouse_stock/appctx"
	"github.com/mmdatafocus/warehouse_stock/utils"
)

const (
	HeaderCorrelationId = "x-correlation-id"
	HeaderActor         = "x-actor"
	HeaderChannel       = "x-channel"
)

// CorrelationMiddleware attaches the caller's correlation id, or a fresh one, to the request context
// and echoes it on the response.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := strings.TrimSpace(c.GetHeader(HeaderCorrelationId))
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Header(HeaderCorrelationId, cid)
		c.Next()
	}
}

// SessionMiddleware records who is acting and through which sales channel.
// Both are informational; the ledger journals the actor as createdBy.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if actor := strings.TrimSpace(c.GetHeader(HeaderActor)); actor != "" {
			ctx = utils.SetActorInContext(ctx, actor)
		}
		if channel := strings.TrimSpace(c.GetHeader(HeaderChannel)); channel != "" {
			ctx = appctx.Set(ctx, appctx.ContextKeyChannel, channel)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
