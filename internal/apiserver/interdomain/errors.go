package interdomain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"shongo-controller/internal/apiserver/auth"
	"shongo-controller/internal/controller/booking"
	"shongo-controller/internal/controller/scheduler"
	"shongo-controller/internal/shared/model"
)

// unauthorizedMessage 认证失败时返回给对端的固定说明
const unauthorizedMessage = "Invalid authentication. Missing certificate or expired access token."

// NotAuthorizedError 对端未通过认证
type NotAuthorizedError struct {
	Err error
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("not authorized: %v", e.Err)
}

func (e *NotAuthorizedError) Unwrap() error { return e.Err }

// ForbiddenError 对端无权访问该对象（未开放的资源、其他域的预约、未知对象）
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return "forbidden: " + e.Message
}

// badRequestError 请求参数错误
type badRequestError struct {
	Message string
}

func (e *badRequestError) Error() string {
	return e.Message
}

func forbidden(format string, args ...any) error {
	return &ForbiddenError{Message: fmt.Sprintf(format, args...)}
}

func badRequest(format string, args ...any) error {
	return &badRequestError{Message: fmt.Sprintf(format, args...)}
}

// statusFor 错误到 HTTP 状态码与协议状态的映射
func statusFor(err error) (int, model.Status) {
	var (
		notAuthorized *NotAuthorizedError
		forbiddenErr  *ForbiddenError
		badReq        *badRequestError
	)
	switch {
	case errors.As(err, &notAuthorized), errors.Is(err, auth.ErrNotAuthorized):
		return http.StatusUnauthorized, model.Status{Code: model.StatusUnauthorized, Message: unauthorizedMessage}
	case errors.As(err, &forbiddenErr):
		return http.StatusForbidden, model.Status{Code: model.StatusForbidden, Message: forbiddenErr.Message}
	case errors.Is(err, booking.ErrForeignRequest):
		return http.StatusForbidden, model.Status{Code: model.StatusForbidden, Message: "reservation request belongs to another domain"}
	case errors.As(err, &badReq):
		return http.StatusBadRequest, model.Status{Code: model.StatusBadRequest, Message: badReq.Message}
	case errors.Is(err, booking.ErrInvalidRequest):
		return http.StatusBadRequest, model.Status{Code: model.StatusBadRequest, Message: err.Error()}
	case scheduler.IsCapacityError(err):
		return http.StatusConflict, model.Status{Code: model.StatusConflict, Message: err.Error()}
	default:
		return http.StatusInternalServerError, model.Status{Code: model.StatusError, Message: "internal error"}
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
