package middleware

import (
	"errors"
	"net/http"
	"strings"

	pkgAuth "jonglog-service/pkg/auth"

	"github.com/gin-gonic/gin"
)

const ContextSubjectKey = "subject"

// AuthRequired guards write routes with an editor token.
func AuthRequired(signer *pkgAuth.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "data": gin.H{}, "msg": err.Error()})
			return
		}

		claims, err := signer.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "data": gin.H{}, "msg": "invalid token"})
			return
		}

		c.Set(ContextSubjectKey, claims.Subject)
		c.Next()
	}
}

func extractBearerToken(authHeader string) (string, error) {
	if strings.TrimSpace(authHeader) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
