package file

import (
	"net/http"

	"bitwise74/fileshare-api/internal"

	"github.com/gin-gonic/gin"
)

// FileFetch returns a file's metadata with the head policy applied
func FileFetch(c *gin.Context, d *internal.Deps) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	view, err := d.Access.Inspect(c.Request.Context(), id, accessRequest(c))
	if err != nil {
		respondError(c, err, "fetch file")
		return
	}

	c.JSON(http.StatusOK, view)
}

// FileVersions returns the version history of a file, oldest first
func FileVersions(c *gin.Context, d *internal.Deps) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	versions, err := d.Access.Versions(c.Request.Context(), id, accessRequest(c))
	if err != nil {
		respondError(c, err, "fetch file versions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"versions": versions,
	})
}
