package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matdesk/requisition-service/pkg/identity"
	"github.com/matdesk/requisition-service/pkg/logging"
)

// Actor header names. Identity is established upstream (gateway or SSO
// proxy); this service trusts the forwarded headers.
const (
	HeaderActorID         = "X-Actor-ID"
	HeaderActorName       = "X-Actor-Name"
	HeaderActorRole       = "X-Actor-Role"
	HeaderActorDepartment = "X-Actor-Department"
)

// Gin context key for the resolved actor
const ContextKeyActor = "actor"

// ActorAuthConfig holds configuration for actor middleware
type ActorAuthConfig struct {
	// Required when true, requests without an actor ID will be rejected
	Required bool

	// DefaultRole is assigned when no role header is provided
	DefaultRole string
}

// DefaultActorAuthConfig returns a default configuration
func DefaultActorAuthConfig() *ActorAuthConfig {
	return &ActorAuthConfig{
		Required:    false,
		DefaultRole: identity.RoleApplicant,
	}
}

// ActorAuth middleware extracts the acting user from headers and adds it
// to the request context.
func ActorAuth(config *ActorAuthConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultActorAuthConfig()
	}

	return func(c *gin.Context) {
		actor := &identity.Actor{
			ID:         c.GetHeader(HeaderActorID),
			Name:       c.GetHeader(HeaderActorName),
			Role:       c.GetHeader(HeaderActorRole),
			Department: c.GetHeader(HeaderActorDepartment),
		}

		if actor.Role == "" {
			actor.Role = config.DefaultRole
		}

		if config.Required && actor.ID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "MISSING_ACTOR_CONTEXT",
				"message": "Actor identity is required",
			})
			return
		}

		ctx := identity.ToContext(c.Request.Context(), actor)
		if actor.ID != "" {
			ctx = logging.ContextWithActorID(ctx, actor.ID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Set(ContextKeyActor, actor)

		c.Next()
	}
}

// GetActor retrieves the actor from Gin context
func GetActor(c *gin.Context) *identity.Actor {
	if val, exists := c.Get(ContextKeyActor); exists {
		if actor, ok := val.(*identity.Actor); ok {
			return actor
		}
	}
	return &identity.Actor{}
}

// RequireActor is a middleware that ensures an actor identity is present.
// Use this for endpoints that mutate stock or requisitions.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := GetActor(c)
		if actor.IsEmpty() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "MISSING_ACTOR_CONTEXT",
				"message": "Actor identity is required for this endpoint",
			})
			return
		}
		c.Next()
	}
}

// RequireElevated is a middleware that restricts access to elevated roles.
// Use this for material administration endpoints.
func RequireElevated() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := GetActor(c)
		if actor.IsEmpty() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "MISSING_ACTOR_CONTEXT",
				"message": "Actor identity is required for this endpoint",
			})
			return
		}
		if !actor.IsElevated() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "FORBIDDEN",
				"message": "An elevated role is required for this endpoint",
			})
			return
		}
		c.Next()
	}
}
