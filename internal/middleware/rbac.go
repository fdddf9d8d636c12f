package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-hub-api/internal/models"
	appErrors "github.com/noah-isme/campus-hub-api/pkg/errors"
	"github.com/noah-isme/campus-hub-api/pkg/response"
)

// RequireRoles admits tokens holding any of roles. It is a coarse route
// guard; engines re-check roles against user_roles before mutating.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	denied := appErrors.Clone(appErrors.ErrForbidden, "requires one of: "+strings.Join(names, ", "))

	return func(c *gin.Context) {
		claims := Claims(c)
		switch {
		case claims == nil:
			response.Error(c, appErrors.ErrUnauthorized)
		case !claims.HasRole(roles...):
			response.Error(c, denied)
		default:
			c.Next()
		}
	}
}
