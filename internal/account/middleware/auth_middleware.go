package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/token"
)

const (
	ContextSubject = "subject"
	ContextRoles   = "roles"
)

// Auth validates the bearer token shared with the transaction service.
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
		c.Next()
	}
}

// RequireRole gates an endpoint on a role claim.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if HasRole(c, role) {
			c.Next()
			return
		}
		abortWith(c, apperrors.ErrRoleRequired.WithDetails("required role: "+role))
	}
}

func Subject(c *gin.Context) string {
	return c.GetString(ContextSubject)
}

func HasRole(c *gin.Context, role string) bool {
	roles, exists := c.Get(ContextRoles)
	if !exists {
		return false
	}
	for _, r := range roles.([]string) {
		if r == role {
			return true
		}
	}
	return false
}

func abortWith(c *gin.Context, err *apperrors.AppError) {
	c.JSON(err.Status, gin.H{
		"error":   err.Code,
		"message": err.Message,
		"details": err.Details,
	})
	c.Abort()
}
