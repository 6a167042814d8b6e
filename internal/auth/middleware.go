package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireRole enforces a bearer session token with the given role. A missing
// or role-mismatched session is fatal to the protected view: the client gets
// 401 with a redirect hint and returns to the login screen.
func RequireRole(role, signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			abortToLogin(c, "missing session")
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			abortToLogin(c, "invalid session")
			return
		}
		if role != "" && claims.Role != role {
			abortToLogin(c, "wrong role for this view")
			return
		}
		c.Set("claims", claims)
		c.Next()
	}
}

// ClaimsFrom returns the session claims set by RequireRole.
func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get("claims")
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

func abortToLogin(c *gin.Context, reason string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason, "redirect": "/login"})
}
