package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

const (
	UserKey   = "userID"
	RoleAdmin = "admin"
)

// RequireRole accepts requests carrying an HMAC-signed bearer token whose
// "role" claim equals role.
func RequireRole(secret []byte, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(secret) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication not configured"})
			return
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing token"})
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		if userRole, _ := claims["role"].(string); userRole != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}
		if sub, _ := claims["sub"].(string); sub != "" {
			c.Set(UserKey, sub)
		}
		c.Next()
	}
}

// AdminAuth guards administrative endpoints.
func AdminAuth(secret string) gin.HandlerFunc {
	return RequireRole([]byte(secret), RoleAdmin)
}

func GetUserID(c *gin.Context) string {
	return c.GetString(UserKey)
}
