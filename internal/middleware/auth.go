package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jengzang/fleet-records-backend-go/pkg/response"
)

const organizationKey = "organization"

// Claims carries the organization a token is scoped to
type Claims struct {
	Organization string `json:"org"`
	jwt.RegisteredClaims
}

// ParseToken validates an HS256 token and returns its claims
func ParseToken(secret, token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Organization == "" {
		return nil, errors.New("token has no organization claim")
	}
	return claims, nil
}

// JWTAuth requires a bearer token and scopes the request to its
// organization. An empty secret disables authentication.
func JWTAuth(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			response.Unauthorized(c, "Missing bearer token")
			return
		}

		claims, err := ParseToken(secret, token)
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			return
		}
		c.Set(organizationKey, claims.Organization)
		c.Next()
	}
}

// OrganizationID returns the organization of an authenticated request
func OrganizationID(c *gin.Context) string {
	return c.GetString(organizationKey)
}
