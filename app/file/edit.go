package file

import (
	"net/http"

	"bitwise74/fileshare-api/internal"
	"bitwise74/fileshare-api/internal/service"

	"github.com/gin-gonic/gin"
)

func FileEdit(c *gin.Context, d *internal.Deps) {
	userID := c.MustGet("userID").(string)

	id, ok := fileID(c)
	if !ok {
		return
	}

	var data service.Patch
	if !bindJSON(c, &data) {
		return
	}

	f, err := d.Files.Update(c.Request.Context(), userID, id, data)
	if err != nil {
		respondError(c, err, "update file")
		return
	}

	c.JSON(http.StatusOK, f)
}
