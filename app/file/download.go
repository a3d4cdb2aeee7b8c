package file

import (
	"net/http"

	"bitwise74/fileshare-api/internal"

	"github.com/gin-gonic/gin"
)

// FileDownload checks the head policy, counts the download and returns a
// short lived storage URL
func FileDownload(c *gin.Context, d *internal.Deps) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	res, err := d.Access.Download(c.Request.Context(), id, accessRequest(c), c.ClientIP())
	if err != nil {
		respondError(c, err, "download file")
		return
	}

	c.JSON(http.StatusOK, res)
}

// FileLink is the public share link. It goes through the same checks as
// FileDownload and redirects to storage.
func FileLink(c *gin.Context, d *internal.Deps) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	res, err := d.Access.Download(c.Request.Context(), id, accessRequest(c), c.ClientIP())
	if err != nil {
		respondError(c, err, "download file")
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, res.URL)
}

// FilePreview returns a URL that renders the file inline. Previews aren't
// counted as downloads.
func FilePreview(c *gin.Context, d *internal.Deps) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	url, err := d.Access.Preview(c.Request.Context(), id, accessRequest(c))
	if err != nil {
		respondError(c, err, "preview file")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url": url,
	})
}
