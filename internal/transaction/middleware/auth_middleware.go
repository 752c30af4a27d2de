package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/token"
)

// Context keys set by Auth for downstream handlers.
const (
	ContextSubject = "subject"
	ContextRoles   = "roles"
	ContextBearer  = "bearer"
)

// Auth validates the bearer token on every request and stashes the identity
// plus the raw token, which the orchestrator forwards to the account service.
func Auth(validator *token.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWith(c, apperrors.ErrTokenInvalid.WithDetails("missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortWith(c, apperrors.ErrTokenInvalid.WithDetails("Authorization header must be 'Bearer <token>'"))
			return
		}

		identity, err := validator.Validate(parts[1])
		if err != nil {
			abortWith(c, apperrors.FromError(err))
			return
		}

		c.Set(ContextSubject, identity.Subject)
		c.Set(ContextRoles, identity.Roles)
		c.Set(ContextBearer, parts[1])
		c.Next()
	}
}

// RequireRole gates an endpoint on a role claim.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, exists := c.Get(ContextRoles)
		if exists {
			for _, r := range roles.([]string) {
				if r == role {
					c.Next()
					return
				}
			}
		}
		abortWith(c, apperrors.ErrRoleRequired.WithDetails("required role: "+role))
	}
}

// Subject returns the authenticated principal for the current request.
func Subject(c *gin.Context) string {
	return c.GetString(ContextSubject)
}

// Bearer returns the raw token forwarded to the account service.
func Bearer(c *gin.Context) string {
	return c.GetString(ContextBearer)
}

func abortWith(c *gin.Context, err *apperrors.AppError) {
	// Headers must be set before the body is written.
	if err.Status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.JSON(err.Status, gin.H{
		"error":   err.Code,
		"message": err.Message,
		"details": err.Details,
	})
	c.Abort()
}
