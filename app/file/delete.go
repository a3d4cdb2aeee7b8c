package file

import (
	"net/http"

	"bitwise74/fileshare-api/internal"

	"github.com/gin-gonic/gin"
)

const maxBulkSize = 100

type bulkBody struct {
	IDs  []string `json:"ids"`
	Tags []string `json:"tags"`
}

func FileDelete(c *gin.Context, d *internal.Deps) {
	userID := c.MustGet("userID").(string)

	id, ok := fileID(c)
	if !ok {
		return
	}

	if err := d.Files.Delete(c.Request.Context(), userID, id); err != nil {
		respondError(c, err, "delete file")
		return
	}

	c.Status(http.StatusNoContent)
}

// FileDeleteBulk deletes every id in the body and reports the outcome per id
func FileDeleteBulk(c *gin.Context, d *internal.Deps) {
	userID := c.MustGet("userID").(string)

	data, ok := bindBulk(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": d.Files.DeleteBulk(c.Request.Context(), userID, data.IDs),
	})
}

func bindBulk(c *gin.Context) (*bulkBody, bool) {
	var data bulkBody
	if !bindJSON(c, &data) {
		return nil, false
	}

	if len(data.IDs) == 0 || len(data.IDs) > maxBulkSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Provide between 1 and 100 file IDs",
			"requestID": c.MustGet("requestID").(string),
		})
		return nil, false
	}

	return &data, true
}
