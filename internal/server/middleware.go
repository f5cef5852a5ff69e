package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/estate/internal/auditcontext"
	"github.com/smallbiznis/estate/internal/authorization"
	obscontext "github.com/smallbiznis/estate/internal/observability/context"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// ActorContext reads the caller identity asserted by the gateway. Requests
// without X-User-ID stay anonymous; a malformed identity is rejected.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if rawID == "" {
			c.Next()
			return
		}

		userID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || userID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		role := authorization.RoleUser
		if rawRole := strings.TrimSpace(c.GetHeader(HeaderUserRole)); rawRole != "" {
			parsed, ok := authorization.ParseRole(rawRole)
			// system is reserved for background jobs
			if !ok || parsed == authorization.RoleSystem {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			role = parsed
		}

		actor := authorization.Actor{UserID: userID, Role: role}
		ctx := authorization.WithActor(c.Request.Context(), actor)
		ctx = auditcontext.WithActor(ctx, string(role), actor.IDString())
		ctx = obscontext.WithActor(ctx, string(role), actor.IDString())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireActor rejects anonymous requests.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := authorization.ActorFromContext(c.Request.Context()); !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func actorFromRequest(c *gin.Context) (authorization.Actor, bool) {
	return authorization.ActorFromContext(c.Request.Context())
}
