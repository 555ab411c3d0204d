package v1

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AdminTokenHeader header carrying the admin token
const AdminTokenHeader = "X-Admin-Token"

// AdminToken guards write routes. The token is read from X-Admin-Token or a
// Bearer Authorization header. With no token configured the routes are closed.
func AdminToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "carga deshabilitada: no hay clave de administración configurada"})
			return
		}

		got := c.GetHeader(AdminTokenHeader)
		if got == "" {
			got = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "clave de acceso incorrecta"})
			return
		}
		c.Next()
	}
}
