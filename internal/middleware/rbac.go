package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/parc-api/internal/authz"
	"github.com/noah-isme/parc-api/pkg/response"
)

// ResourceFunc derives the authorization resource from the request.
type ResourceFunc func(c *gin.Context, actor *authz.Actor) authz.Resource

type actionAuthorizer interface {
	Authorize(actor *authz.Actor, action authz.Action, res authz.Resource) authz.Decision
}

// Actor builds the authorization actor from the request claims. It returns nil for anonymous callers.
func Actor(c *gin.Context) *authz.Actor {
	claims := Claims(c)
	if claims == nil {
		return nil
	}
	return &authz.Actor{ID: claims.UserID, Role: claims.Role, Staff: claims.Staff}
}

// Authorize consults the matrix for action before the handler runs.
func Authorize(matrix actionAuthorizer, action authz.Action, resource ResourceFunc, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		actor := Actor(c)
		var res authz.Resource
		if resource != nil {
			res = resource(c, actor)
		}

		decision := matrix.Authorize(actor, action, res)
		if !decision.Allowed {
			logger.Debug("request denied",
				zap.String("action", string(action)),
				zap.String("rule", decision.Rule),
				zap.String("path", c.FullPath()),
			)
			response.Error(c, decision.Err())
			c.Abort()
			return
		}
		c.Next()
	}
}

// OwnerFromParam treats the named path parameter as the resource owner.
func OwnerFromParam(name string) ResourceFunc {
	return func(c *gin.Context, _ *authz.Actor) authz.Resource {
		return authz.Resource{OwnerID: c.Param(name)}
	}
}

// OwnerSelf scopes the resource to the caller, for "/me" routes.
func OwnerSelf() ResourceFunc {
	return func(_ *gin.Context, actor *authz.Actor) authz.Resource {
		if actor == nil {
			return authz.Resource{}
		}
		return authz.Resource{OwnerID: actor.ID}
	}
}
