package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/ctcadmin/ctc-admin-api/internal/models"
)

func performWithClaims(t *testing.T, claims *models.JWTClaims, roles ...models.UserRole) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/protected", func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	}, RequireRoles(roles...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRequireRolesAllows(t *testing.T) {
	w := performWithClaims(t, &models.JWTClaims{UserID: "u1", Role: models.RoleRegistrar},
		models.RoleAdmin, models.RoleRegistrar)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRolesForbids(t *testing.T) {
	w := performWithClaims(t, &models.JWTClaims{UserID: "u1", Role: models.RoleInstructor},
		models.RoleAdmin, models.RoleRegistrar)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRolesMissingClaims(t *testing.T) {
	w := performWithClaims(t, nil, models.RoleAdmin)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
