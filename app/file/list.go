package file

import (
	"net/http"

	"bitwise74/fileshare-api/internal"
	"bitwise74/fileshare-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// FileList returns the newest version of every lineage the caller may see.
// ?q= filters by name.
func FileList(c *gin.Context, d *internal.Deps) {
	identity := middleware.IdentityOf(c)

	files, err := d.Access.ListVisible(c.Request.Context(), identity.UserID, c.Query("q"))
	if err != nil {
		respondError(c, err, "list files")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"files": files,
	})
}

// FileListOwned returns the caller's own lineages including private ones
func FileListOwned(c *gin.Context, d *internal.Deps) {
	userID := c.MustGet("userID").(string)

	files, err := d.Access.ListOwned(c.Request.Context(), userID, c.Query("q"))
	if err != nil {
		respondError(c, err, "list owned files")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"files": files,
	})
}
