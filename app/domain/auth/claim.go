package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"menlo.ai/jan-feed-gateway/config/environment_variables"
)

const ContextViewerClaim = "context_viewer_claim"

// ViewerClaim identifies the viewer behind a request. The viewer id is the
// token subject.
type ViewerClaim struct {
	Name  string `json:"name,omitempty"`
	Admin bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

func (c *ViewerClaim) ViewerID() string {
	return c.Subject
}

func CreateJwtSignedString(u ViewerClaim) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, u)
	return token.SignedString(environment_variables.EnvironmentVariables.JWT_SECRET)
}

func ParseJwt(tokenString string) (*ViewerClaim, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ViewerClaim{}, func(token *jwt.Token) (interface{}, error) {
		return environment_variables.EnvironmentVariables.JWT_SECRET, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*ViewerClaim)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// GetViewerClaim returns the claim stored by the auth middleware.
func GetViewerClaim(reqCtx *gin.Context) (*ViewerClaim, bool) {
	v, ok := reqCtx.Get(ContextViewerClaim)
	if !ok {
		return nil, false
	}
	claim, ok := v.(*ViewerClaim)
	return claim, ok && claim != nil
}
