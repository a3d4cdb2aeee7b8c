package file

import (
	"net/http"

	"bitwise74/fileshare-api/internal/policy"
	"bitwise74/fileshare-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

const PinHeader = "X-File-Pin"

// accessRequest builds the policy request of the caller. The PIN is taken
// from the X-File-Pin header or the pin query parameter.
func accessRequest(c *gin.Context) policy.Request {
	pin := c.GetHeader(PinHeader)
	if pin == "" {
		pin = c.Query("pin")
	}

	return policy.Request{
		Identity: middleware.IdentityOf(c),
		Pin:      pin,
	}
}

func fileID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No file ID provided",
			"requestID": c.MustGet("requestID").(string),
		})
		return "", false
	}

	return id, true
}

// bindJSON binds the request body into v and answers with 400 on failure
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": c.MustGet("requestID").(string),
		})
		return false
	}

	return true
}
