package api

import (
	"errors"

	"github.com/gin-gonic/gin"
)

var (
	ErrNoBackendAvailable = errors.New("no backend available")
)

func respondError(c *gin.Context, code int, err error) {
	c.JSON(code, ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}
