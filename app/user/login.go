package user

import (
	"errors"
	"net/http"

	"bitwise74/fileshare-api/internal"
	"bitwise74/fileshare-api/internal/store"
	"bitwise74/fileshare-api/pkg/middleware"
	"bitwise74/fileshare-api/pkg/security"
	"bitwise74/fileshare-api/validators"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func UserLogin(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data loginBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})
		return
	}

	email, err := validators.NormalizeEmail(data.Email)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     err.Error(),
			"requestID": requestID,
		})
		return
	}

	if data.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Password field can't be empty",
			"requestID": requestID,
		})
		return
	}

	user, err := d.Store.FindUserByEmail(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":     "Invalid credentials",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to find user", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	ok, err := d.Passwords.Verify(data.Password, user.PasswordHash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to verify password", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":     "Invalid credentials",
			"requestID": requestID,
		})
		return
	}

	if d.Passwords.NeedsRehash(user.PasswordHash) {
		rehash(c, d, user.ID, data.Password)
	}

	ttl := viper.GetDuration("security.token_ttl")

	authToken, err := security.IssueToken(user.ID, []byte(viper.GetString("security.jwt_secret")), ttl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to generate JWT auth token", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	secure := viper.GetBool("host.ssl_enabled")

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AuthCookie, authToken, int(ttl.Seconds()), "/", "", secure, true)
	c.SetCookie("logged_in", "1", int(ttl.Seconds()), "/", "", secure, false)
	c.JSON(http.StatusOK, gin.H{
		"userID": user.ID,
	})
}

// rehash stores the password with the current argon settings. Failing to do so
// doesn't fail the login.
func rehash(c *gin.Context, d *internal.Deps, userID, password string) {
	requestID := c.MustGet("requestID").(string)

	hash, err := d.Passwords.Hash(password)
	if err != nil {
		zap.L().Warn("Failed to rehash password", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	if err := d.Store.UpdatePasswordHash(c.Request.Context(), userID, hash); err != nil {
		zap.L().Warn("Failed to store rehashed password", zap.Error(err), zap.String("requestID", requestID))
	}
}
