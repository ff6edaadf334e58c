package gateway

import (
	"crypto/rand"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v7"
)

const apiKeySet = "apikeys"

// GenerateAPIKey mints a random hex API key.
func GenerateAPIKey() (string, error) {
	key := make([]byte, 16)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", key), nil
}

// APIAuth gates requests on an api-key header registered in redis. With no
// redis client configured the gate is open; that is the development setup.
func APIAuth(r *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil {
			c.Next()
			return
		}
		key := c.GetHeader("api-key")
		if key == "" || !isMember(apiKeySet, key, r) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "wrong_api_key",
				"message": "a valid api-key header is required"})
			return
		}
		c.Next()
	}
}

// MintAPIKeyHandler is the admin endpoint that generates and registers a key.
func MintAPIKeyHandler(r *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"code": "no_keystore", "message": "api keys are not enabled"})
			return
		}
		key, err := GenerateAPIKey()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "message": "key generation failed"})
			return
		}
		if err := r.SAdd(apiKeySet, key).Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "message": "key storage failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": key})
	}
}

func isMember(key, val string, r *redis.Client) bool {
	b, _ := r.SIsMember(key, val).Result()
	return b
}
