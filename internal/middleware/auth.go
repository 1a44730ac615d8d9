package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/therealutkarshpriyadarshi/render/internal/config"
)

const (
	AuthContextKey = "client_id"

	// SharedSecretHeader carries the server-to-server secret
	SharedSecretHeader = "X-Render-Secret"

	sharedSecretClient = "internal"
)

// Claims represents JWT claims issued to editor sessions
type Claims struct {
	jwt.RegisteredClaims
}

// Auth accepts either a Bearer session token signed with the JWT secret or
// the shared secret header. With neither secret configured every request
// is refused.
func Auth(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.JWTSecret == "" && cfg.SharedSecret == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "auth is not configured"})
			c.Abort()
			return
		}

		if cfg.SharedSecret != "" {
			if secret := c.GetHeader(SharedSecretHeader); secret != "" {
				if subtle.ConstantTimeCompare([]byte(secret), []byte(cfg.SharedSecret)) == 1 {
					c.Set(AuthContextKey, sharedSecretClient)
					c.Next()
					return
				}
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid shared secret"})
				c.Abort()
				return
			}
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || cfg.JWTSecret == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
			c.Abort()
			return
		}

		subject, err := ParseToken(cfg.JWTSecret, parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(AuthContextKey, subject)
		c.Next()
	}
}

// GenerateToken issues a session token for subject
func GenerateToken(secret, subject string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates a session token and returns its subject
func ParseToken(secret, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token claims")
	}
	return claims.Subject, nil
}

// GetClientID retrieves the authenticated client from the context
func GetClientID(c *gin.Context) (string, bool) {
	clientID, exists := c.Get(AuthContextKey)
	if !exists {
		return "", false
	}

	clientIDStr, ok := clientID.(string)
	return clientIDStr, ok
}
