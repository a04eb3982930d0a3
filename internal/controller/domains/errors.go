package domains

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnknownDomain 域未登记或为本域
var ErrUnknownDomain = errors.New("unknown foreign domain")

// ConnectError 与对端域通信失败
//
// Status 为对端返回的 HTTP 状态码，网络错误时为 0。
type ConnectError struct {
	Domain  string
	URL     string
	Status  int
	Message string
	Err     error
}

func (e *ConnectError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("domain %s (%s): %v", e.Domain, e.URL, e.Err)
	case e.Message != "":
		return fmt.Sprintf("domain %s (%s): status %d: %s", e.Domain, e.URL, e.Status, e.Message)
	default:
		return fmt.Sprintf("domain %s (%s): status %d", e.Domain, e.URL, e.Status)
	}
}

func (e *ConnectError) Unwrap() error { return e.Err }

// IsConflict 对端因容量不足拒绝预约（可换时间段重试）
func IsConflict(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce) && ce.Status == http.StatusConflict
}

// IsForbidden 对端拒绝访问该对象
func IsForbidden(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce) && ce.Status == http.StatusForbidden
}
