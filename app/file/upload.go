package file

import (
	"net/http"

	"bitwise74/fileshare-api/internal"
	"bitwise74/fileshare-api/internal/service"

	"github.com/gin-gonic/gin"
)

type uploadURLBody struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// FileUploadURL hands out a presigned URL the client uploads the object to
func FileUploadURL(c *gin.Context, d *internal.Deps) {
	var data uploadURLBody
	if !bindJSON(c, &data) {
		return
	}

	ticket, err := d.Files.RequestUpload(c.Request.Context(), data.Name, data.ContentType, data.Size)
	if err != nil {
		respondError(c, err, "issue upload url")
		return
	}

	c.JSON(http.StatusOK, ticket)
}

// FileSync saves the metadata of an uploaded object
func FileSync(c *gin.Context, d *internal.Deps) {
	userID := c.MustGet("userID").(string)

	var data service.SyncInput
	if !bindJSON(c, &data) {
		return
	}

	f, err := d.Files.Sync(c.Request.Context(), userID, data)
	if err != nil {
		respondError(c, err, "sync file")
		return
	}

	c.JSON(http.StatusCreated, f)
}
