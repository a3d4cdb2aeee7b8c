package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"bitwise74/fileshare-api/internal/policy"
	"bitwise74/fileshare-api/internal/store"
	"bitwise74/fileshare-api/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/jellydator/ttlcache/v2"
	"go.uber.org/zap"
)

const (
	AuthCookie  = "auth_token"
	identityKey = "identity"

	knownUserTTL = 5 * time.Minute
)

type Auth struct {
	users  store.Users
	secret []byte
	// Ids of users that still exist, so not every request hits the database
	known *ttlcache.Cache
}

func NewAuth(users store.Users, secret string) *Auth {
	known := ttlcache.NewCache()
	known.SetTTL(knownUserTTL)
	known.SkipTTLExtensionOnHit(true)

	return &Auth{
		users:  users,
		secret: []byte(secret),
		known:  known,
	}
}

func (a *Auth) Close() error {
	return a.known.Close()
}

// Required rejects requests without a valid session
func (a *Auth) Required() gin.HandlerFunc {
	return a.handler(false)
}

// Optional lets anonymous requests through with an anonymous identity. A
// present but invalid token is still rejected.
func (a *Auth) Optional() gin.HandlerFunc {
	return a.handler(true)
}

func (a *Auth) handler(optional bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.MustGet("requestID").(string)

		token := tokenFrom(c)
		if token == "" {
			if optional {
				c.Set(identityKey, policy.Identity{})
				c.Next()
				return
			}

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Authentication required",
				"requestID": requestID,
			})
			return
		}

		userID, err := security.ParseToken(token, a.secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Authorization token invalid",
				"requestID": requestID,
			})

			zap.L().Debug("Rejected token", zap.Error(err), zap.String("requestID", requestID))
			return
		}

		if err := a.exists(c.Request.Context(), userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":     "User not found",
					"requestID": requestID,
				})
				return
			}

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to check if user exists", zap.Error(err), zap.String("requestID", requestID))
			return
		}

		c.Set(identityKey, policy.Identity{UserID: userID, Authenticated: true})
		c.Set("userID", userID)
		c.Next()
	}
}

func (a *Auth) exists(ctx context.Context, userID string) error {
	if _, err := a.known.Get(userID); err == nil {
		return nil
	}

	if _, err := a.users.FindUser(ctx, userID); err != nil {
		return err
	}

	if err := a.known.Set(userID, struct{}{}); err != nil {
		zap.L().Warn("Failed to cache user", zap.Error(err))
	}

	return nil
}

func tokenFrom(c *gin.Context) string {
	if t, err := c.Cookie(AuthCookie); err == nil && t != "" {
		return t
	}

	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}

	return ""
}

// IdentityOf returns the caller set by the auth middleware, anonymous if unset
func IdentityOf(c *gin.Context) policy.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(policy.Identity); ok {
			return id
		}
	}

	return policy.Identity{}
}
