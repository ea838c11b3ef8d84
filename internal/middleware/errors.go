package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/guttosm/marketpulse/internal/domain/dto"
)

// ErrorHandler turns errors attached with c.Error into a 500 JSON response,
// unless the handler already wrote a response.
//
// Usage:
//
//	router.Use(middleware.ErrorHandler)
//	...
//	if err != nil {
//		_ = c.Error(err)
//		return
//	}
func ErrorHandler(c *gin.Context) {
	c.Next()

	if len(c.Errors) == 0 || c.Writer.Written() {
		return
	}

	last := c.Errors.Last()
	c.JSON(http.StatusInternalServerError, dto.NewErrorResponse("Internal server error", last.Err))
}

// AbortWithError stops the chain and writes a standardized error body.
// err is optional and is exposed in the "error" field.
func AbortWithError(c *gin.Context, status int, message string, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, dto.NewErrorResponse(message, err))
}
