package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/auditlens/auditlens-backend/internal/platform/apierr"
	"github.com/auditlens/auditlens-backend/internal/platform/logger"
)

// respondError maps service errors onto HTTP. Anything that is not an
// apierr.Error is a 500 with a generic body.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	if ae, ok := apierr.As(err); ok {
		status := ae.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"message": ae.Error(), "code": ae.Code})
		return
	}
	log.Error("unhandled error", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error."})
}
