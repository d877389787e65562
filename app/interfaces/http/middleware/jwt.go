package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"menlo.ai/jan-feed-gateway/app/domain/auth"
	"menlo.ai/jan-feed-gateway/app/domain/common"
	"menlo.ai/jan-feed-gateway/app/interfaces/http/responses"
)

// AuthMiddleware requires a bearer token naming the viewer.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, responses.ErrorResponse{
				Code:  "55312c8d-4fa4-4ecf-a0a2-6fee16c8d7e0",
				Error: "missing authorization header",
			})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, responses.ErrorResponse{
				Code:  "c6d6bafd-b9f3-4ebb-9c90-a21b07308ebc",
				Error: "authorization header must be a bearer token",
			})
			return
		}

		claims, err := auth.ParseJwt(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, responses.ErrorResponse{
				Code:  "9d7a21c4-d94c-4451-841b-4d9333f86942",
				Error: "invalid token",
			})
			return
		}
		if claims.ViewerID() == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, responses.ErrorResponse{
				Code:  "6cc0aa26-148d-4b8d-8f53-9d47b2a00ef1",
				Error: "token has no subject",
			})
			return
		}

		c.Set(auth.ContextViewerClaim, claims)
		c.Next()
	}
}

// AdminMiddleware runs after AuthMiddleware and admits admin tokens only.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := auth.GetViewerClaim(c)
		if !ok || !claims.Admin {
			c.AbortWithStatusJSON(http.StatusForbidden, responses.ErrorResponse{
				Code:  "b8e1c6a2-3f0d-4c7e-9a5b-1d2e3f4a5b6c",
				Error: "admin access required",
			})
			return
		}
		c.Next()
	}
}

// ViewerID returns the authenticated viewer or aborts with 401.
func ViewerID(c *gin.Context) (string, bool) {
	claims, ok := auth.GetViewerClaim(c)
	if !ok {
		responses.AbortWithError(c, common.ErrUnauthorized)
		return "", false
	}
	return claims.ViewerID(), true
}
