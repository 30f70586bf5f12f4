package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/jwalitptl/hiring-api/pkg/errors"
)

// ContextUserID is the gin context key holding the authenticated caller.
const ContextUserID = "user_id"

type Response struct {
	Status  string      `json:"status"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// StatusCode maps an application error code to its HTTP status.
func StatusCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrBadRequest:
		return http.StatusBadRequest
	case apperrors.ErrUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrForbidden:
		return http.StatusForbidden
	case apperrors.ErrConflict, apperrors.ErrInvalidTransition:
		return http.StatusConflict
	case apperrors.ErrRateLimited:
		return http.StatusTooManyRequests
	case apperrors.ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody builds the client-facing body for err. Internal details are
// never exposed for 5xx responses.
func ErrorBody(err error) (int, *Response) {
	code := apperrors.CodeOf(err)
	status := StatusCode(code)

	resp := NewErrorResponse("internal server error")
	resp.Code = code.String()
	if appErr := asAppError(err); appErr != nil && status < http.StatusInternalServerError {
		resp.Message = appErr.Message
	} else if status == http.StatusServiceUnavailable {
		resp.Message = "service temporarily unavailable"
	}
	return status, resp
}

// Fail records err on the context for the error middleware and aborts.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ActorID returns the authenticated caller, if any.
func ActorID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// PathUUID parses a uuid path parameter.
func PathUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperrors.BadRequest("invalid "+name, err)
	}
	return id, nil
}

// RequireSelf fails the request unless the caller is the user named by the
// :id path parameter.
func RequireSelf(c *gin.Context) (uuid.UUID, bool) {
	userID, err := PathUUID(c, "id")
	if err != nil {
		Fail(c, err)
		return uuid.Nil, false
	}
	actor, ok := ActorID(c)
	if !ok {
		Fail(c, apperrors.Unauthorized(nil))
		return uuid.Nil, false
	}
	if actor != userID {
		Fail(c, apperrors.Forbidden("cannot access another user's resources"))
		return uuid.Nil, false
	}
	return userID, true
}

func asAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
