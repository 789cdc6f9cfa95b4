package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/exam-service/internal/services"
	"github.com/SAP-F-2025/exam-service/internal/utils"
	"github.com/SAP-F-2025/exam-service/internal/validator"
)

type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// LogRequest logs an incoming request with the context-scoped logger.
func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	logger := utils.FromContext(c.Request.Context(), h.logger)
	args = append(args, "method", c.Request.Method, "path", c.FullPath())
	logger.Info(msg, args...)
}

// parseIDParam parses a numeric path parameter. On failure it writes the 400
// response itself and returns 0; callers just check for 0 and return.
func (h *BaseHandler) parseIDParam(c *gin.Context, name string) uint {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + name + " parameter",
			Details: raw,
		})
		return 0
	}
	return uint(id)
}

// requireUserID reads the authenticated user id set by the identity
// middleware. A missing id writes the 401 response and returns false.
func (h *BaseHandler) requireUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return "", false
	}
	return userID.(string), true
}

// handleServiceError maps a service error to an HTTP response via its kind.
// Internal errors are logged in full but reported without detail.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	logger := utils.FromContext(c.Request.Context(), h.logger)

	switch services.Classify(err) {
	case services.KindValidation:
		response := ErrorResponse{Message: err.Error()}
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			response.Message = "Validation failed"
			response.Details = fieldErrors
		}
		c.JSON(http.StatusBadRequest, response)
	case services.KindNotFound:
		c.JSON(http.StatusNotFound, ErrorResponse{Message: err.Error()})
	case services.KindForbidden:
		c.JSON(http.StatusForbidden, ErrorResponse{Message: err.Error()})
	case services.KindConflict:
		c.JSON(http.StatusConflict, ErrorResponse{Message: err.Error()})
	default:
		logger.Error("request failed", "error", err, "path", c.FullPath())
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
