// Package response writes the JSON envelope every API route returns.
package response

import (
	"net/http"

	"Raksha/pkg/errors"

	"github.com/gin-gonic/gin"
)

type Body struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func Success(c *gin.Context, msg string, data any) {
	c.JSON(http.StatusOK, Body{Code: 0, Msg: msg, Data: data})
}

// Fail reports a client error with status 400.
func Fail(c *gin.Context, msg string, data any) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Body{Code: http.StatusBadRequest, Msg: msg, Data: data})
}

// Error maps err to a status through its code, then its kind.
func Error(c *gin.Context, err error) {
	status := Status(err)
	c.AbortWithStatusJSON(status, Body{Code: status, Msg: err.Error()})
}

func Status(err error) int {
	if code := errors.GetCode(err); code >= 400 && code < 600 {
		return code
	}
	switch errors.KindOf(err) {
	case errors.KindInvalid:
		return http.StatusBadRequest
	case errors.KindPermissionDenied:
		return http.StatusForbidden
	case errors.KindBusy:
		return http.StatusConflict
	case errors.KindUnavailable, errors.KindTransient:
		return http.StatusServiceUnavailable
	case errors.KindCancelled:
		return 499
	}
	return http.StatusInternalServerError
}
