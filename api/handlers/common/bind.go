package common

import (
	"net/http"

	internalcommon "incidentdesk/internal/common"

	"github.com/gin-gonic/gin"
)

// BindError 请求参数绑定失败
func BindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Success: false,
		Code:    internalcommon.CodeInvalidRequest,
		Message: "Invalid request: " + err.Error(),
	})
}
