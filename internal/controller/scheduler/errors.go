package scheduler

import (
	"errors"
	"fmt"

	"shongo-controller/internal/controller/availability"
)

var (
	// ErrNotEnoughEndpoints 参与者总数不足两个
	ErrNotEnoughEndpoints = errors.New("at least two devices/ports must be requested")

	// ErrNoAvailableVirtualRoom 没有技术上兼容的会议室（换时间也无法满足）
	ErrNoAvailableVirtualRoom = errors.New("no available virtual room")

	// ErrNotEnoughPorts 存在兼容的会议室，但区间内端口不足（可换时间重试）
	ErrNotEnoughPorts = fmt.Errorf("no virtual room with enough free ports: %w", availability.ErrNotEnoughPorts)
)

// IsCapacityError 是否为容量类失败
func IsCapacityError(err error) bool {
	return availability.IsCapacityError(err)
}
