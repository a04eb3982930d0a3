package booking

import "errors"

var (
	// ErrInvalidRequest 请求参数不合法
	ErrInvalidRequest = errors.New("invalid booking request")
	// ErrForeignRequest 预约请求属于其他域，不能由调用方修改或删除
	ErrForeignRequest = errors.New("reservation request belongs to another domain")
)
