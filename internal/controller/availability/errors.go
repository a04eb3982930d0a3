package availability

import "errors"

var (
	// ErrResourceNotMaintained 资源不在数据库中（内部一致性错误）
	ErrResourceNotMaintained = errors.New("resource is not maintained")
	// ErrDuplicateResource 资源已存在
	ErrDuplicateResource = errors.New("resource already maintained")
	// ErrResourceInUse 资源仍有分配记录，不能删除
	ErrResourceInUse = errors.New("resource has allocations")
	// ErrUnknownAllocation 分配记录不存在（内部一致性错误）
	ErrUnknownAllocation = errors.New("unknown allocated resource")
	// ErrDuplicateAllocation 分配记录 ID 重复
	ErrDuplicateAllocation = errors.New("allocated resource already exists")
	// ErrNotEnoughPorts 区间内端口不足（容量错误，可换时间重试）
	ErrNotEnoughPorts = errors.New("not enough ports")
	// ErrResourceNotAvailable 资源不可分配或区间内已被占用
	ErrResourceNotAvailable = errors.New("resource is not available")
)

// IsCapacityError 是否为容量类错误（调用方可换时间段重试）
func IsCapacityError(err error) bool {
	return errors.Is(err, ErrNotEnoughPorts) || errors.Is(err, ErrResourceNotAvailable)
}
