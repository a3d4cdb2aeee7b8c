// Package file contains the handlers of the /api/files routes and the share link
package file

import (
	"errors"
	"net/http"

	"bitwise74/fileshare-api/internal/policy"
	"bitwise74/fileshare-api/internal/service"
	"bitwise74/fileshare-api/internal/store"
	"bitwise74/fileshare-api/validators"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type denial struct {
	status  int
	message string
}

// Private lineages answer like missing ones so their existence doesn't leak
var denials = map[policy.Decision]denial{
	policy.DeniedPrivate:       {http.StatusNotFound, "File not found"},
	policy.DeniedPin:           {http.StatusUnauthorized, "A valid PIN is required to access this file"},
	policy.DeniedExpired:       {http.StatusGone, "This file has expired"},
	policy.DeniedDownloadLimit: {http.StatusForbidden, "This file has reached its download limit"},
	policy.DeniedPerUserLimit:  {http.StatusForbidden, "You have reached the download limit for this file"},
	policy.DeniedAuthRequired:  {http.StatusUnauthorized, "Please log in to download this file"},
}

// StatusOf maps a service error to a status code and a message safe to show
func StatusOf(err error) (int, string) {
	if d, ok := service.IsDenied(err); ok {
		if den, ok := denials[d]; ok {
			return den.status, den.message
		}

		return http.StatusForbidden, "Access denied"
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "File not found"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "You don't own this file"
	case errors.Is(err, validators.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, validators.ErrFileTooLarge.Error()
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrNotUploaded):
		return http.StatusConflict, "The file hasn't been uploaded yet"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "This file has already been saved"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func respondError(c *gin.Context, err error, action string) {
	requestID := c.MustGet("requestID").(string)
	status, msg := StatusOf(err)

	if status == http.StatusInternalServerError {
		zap.L().Error("Failed to "+action, zap.Error(err), zap.String("requestID", requestID))
	}

	body := gin.H{
		"error":     msg,
		"requestID": requestID,
	}

	if d, ok := service.IsDenied(err); ok && d != policy.DeniedPrivate {
		body["decision"] = d
	}

	c.JSON(status, body)
}
