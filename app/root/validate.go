package root

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Validate answers 200 when the auth middleware accepted the caller's token
func Validate(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"userID": c.MustGet("userID").(string),
	})
}
