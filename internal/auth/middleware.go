package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/smartwater-ai/smartwater-backend/internal/errors"
)

const identityKey = "auth_identity"

// RequireAuth validates the bearer token and stores the identity in the
// request context.
func RequireAuth(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			apperrors.Abort(c, apperrors.NewAuthorizationError("Missing authorization header"))
			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			apperrors.Abort(c, apperrors.NewAuthorizationError("Malformed authorization header"))
			return
		}

		identity, err := service.VerifyToken(tokenString)
		if err != nil {
			apperrors.Abort(c, apperrors.NewAuthorizationError("Invalid or expired token"))
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// IdentityFrom returns the authenticated identity stored by RequireAuth.
func IdentityFrom(c *gin.Context) (*Identity, bool) {
	value, exists := c.Get(identityKey)
	if !exists {
		return nil, false
	}
	identity, ok := value.(*Identity)
	return identity, ok
}

// RequireMC aborts unless the authenticated identity owns the given MC code.
func RequireMC(c *gin.Context, mcCode string) (*Identity, bool) {
	identity, ok := IdentityFrom(c)
	if !ok {
		apperrors.Abort(c, apperrors.NewAuthorizationError("Authentication required"))
		return nil, false
	}
	if identity.MCCode != mcCode {
		apperrors.Abort(c, apperrors.NewAuthorizationError("Access denied: not authorized for this municipal corporation"))
		return nil, false
	}
	return identity, true
}
