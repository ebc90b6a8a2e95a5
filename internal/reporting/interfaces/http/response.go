package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fundreporting/internal/reporting/application"
	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
)

// Response 统一响应结构
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// CodeUnauthenticated 缺少或无效的访问令牌
const CodeUnauthenticated = "UNAUTHENTICATED"

var statusByCode = map[domain.Code]int{
	domain.CodeValidation:        http.StatusBadRequest,
	domain.CodeNotFound:          http.StatusNotFound,
	domain.CodePermissionDenied:  http.StatusForbidden,
	domain.CodeInvalidTransition: http.StatusConflict,
	domain.CodePolicyViolation:   http.StatusUnprocessableEntity,
	domain.CodeConflict:          http.StatusConflict,
	domain.CodeInternal:          http.StatusInternalServerError,
}

// StatusOf 错误码对应的 HTTP 状态
func StatusOf(code domain.Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// fail 领域错误按错误码映射状态；内部错误不透出原因
func fail(c *gin.Context, err error) {
	code := domain.CodeOf(err)
	c.JSON(StatusOf(code), Response{
		Success: false,
		Error:   application.PublicMessage(err),
		Code:    string(code),
		Reason:  domain.ReasonOf(err),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   err.Error(),
		Code:    string(domain.CodeValidation),
	})
}
