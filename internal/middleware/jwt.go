package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/doctorat-api/internal/client"
	"github.com/noah-isme/doctorat-api/internal/models"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
	"github.com/noah-isme/doctorat-api/pkg/logger"
	"github.com/noah-isme/doctorat-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// TokenValidator turns a bearer token into normalized claims.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT protects routes by requiring a valid access token. The raw header is kept on the request
// context so upstream calls are made on behalf of the caller.
func JWT(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(logger.ActorKey, claims.UserID)
		c.Request = c.Request.WithContext(client.WithAuthorization(c.Request.Context(), header))
		c.Next()
	}
}
