package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeNotFound      = 404
	CodeConflict      = 409
	CodeServerError   = 500
	CodeBusinessError = 1000
)

const (
	CodeFetchFailed        = 1001
	CodeTransactionFailed  = 1002
	CodeCrawlInProgress    = 1003
	CodeResourceNotFound   = 1004
	CodeResourceDeleted    = 1005
	CodeEventNotFound      = 1006
	CodeEventNotReplayable = 1007
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
