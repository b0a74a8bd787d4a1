package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openharmony/window-window-manager-sub028/internal/broker"
	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, broker.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, remote.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, remote.ErrUnavailable), errors.Is(err, remote.ErrDeadObject):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

// userParam parses the :user path parameter.
func userParam(c *gin.Context) (int32, bool) {
	v, err := strconv.ParseInt(c.Param("user"), 10, 32)
	if err != nil {
		fail(c, http.StatusBadRequest, errors.New("invalid user id: "+c.Param("user")))
		return 0, false
	}
	return int32(v), true
}
