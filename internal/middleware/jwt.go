package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ctcadmin/ctc-admin-api/internal/service"
	appErrors "github.com/ctcadmin/ctc-admin-api/pkg/errors"
	"github.com/ctcadmin/ctc-admin-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

const bearerPrefix = "bearer "

// JWT rejects requests without a valid access token and stores the parsed
// claims for downstream handlers.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWith(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing or malformed authorization header"))
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			abortWith(c, err)
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	if len(header) <= len(bearerPrefix) {
		return "", false
	}
	if !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

func abortWith(c *gin.Context, err error) {
	response.Error(c, err)
	c.Abort()
}
