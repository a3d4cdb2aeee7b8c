package file

import (
	"net/http"

	"bitwise74/fileshare-api/internal"
	"bitwise74/fileshare-api/internal/service"

	"github.com/gin-gonic/gin"
)

type tagsBody struct {
	Tags []string `json:"tags"`
}

// FileTag attaches tags to a file. Tags that are already attached are ignored.
func FileTag(c *gin.Context, d *internal.Deps) {
	userID := c.MustGet("userID").(string)

	id, ok := fileID(c)
	if !ok {
		return
	}

	var data tagsBody
	if !bindJSON(c, &data) {
		return
	}

	tags, err := d.Files.AttachTags(c.Request.Context(), userID, id, data.Tags)
	if err != nil {
		respondError(c, err, "attach tags")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tags": service.TagNames(tags),
	})
}

func FileTagBulk(c *gin.Context, d *internal.Deps) {
	userID := c.MustGet("userID").(string)

	data, ok := bindBulk(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": d.Files.AttachTagsBulk(c.Request.Context(), userID, data.IDs, data.Tags),
	})
}

// TagList returns the names of all tags
func TagList(c *gin.Context, d *internal.Deps) {
	tags, err := d.Tags.ListTags(c.Request.Context())
	if err != nil {
		respondError(c, err, "list tags")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tags": service.TagNames(tags),
	})
}
