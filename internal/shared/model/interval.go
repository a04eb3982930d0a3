package model

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// Interval - 半开时间区间
// ============================================================================

// Interval 半开时间区间 [Start, End)
type Interval struct {
	Start time.Time `json:"start" bson:"start"`
	End   time.Time `json:"end" bson:"end"`
}

// NewInterval 创建时间区间
func NewInterval(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

// Validate 校验区间合法性
func (i Interval) Validate() error {
	if i.Start.IsZero() || i.End.IsZero() {
		return fmt.Errorf("interval bounds must be set")
	}
	if i.End.Before(i.Start) {
		return fmt.Errorf("interval end %s is before start %s", i.End.Format(time.RFC3339), i.Start.Format(time.RFC3339))
	}
	return nil
}

// IsEmpty 区间长度为零
func (i Interval) IsEmpty() bool {
	return !i.Start.Before(i.End)
}

// Duration 区间长度
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps 两个半开区间是否重叠
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Contains 时间点是否落在区间内
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Extend 两端各扩展 d
func (i Interval) Extend(d time.Duration) Interval {
	return Interval{Start: i.Start.Add(-d), End: i.End.Add(d)}
}

// String 以 "start/end"（RFC3339, UTC）格式输出，与跨域协议中的 slot 参数一致
func (i Interval) String() string {
	return i.Start.UTC().Format(time.RFC3339) + "/" + i.End.UTC().Format(time.RFC3339)
}

// ParseInterval 解析 "start/end" 格式的区间
func ParseInterval(s string) (Interval, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "/", 2)
	if len(parts) != 2 {
		return Interval{}, fmt.Errorf("invalid interval %q: expected start/end", s)
	}
	start, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return Interval{}, fmt.Errorf("invalid interval start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return Interval{}, fmt.Errorf("invalid interval end: %w", err)
	}
	interval := Interval{Start: start, End: end}
	if err := interval.Validate(); err != nil {
		return Interval{}, err
	}
	return interval, nil
}
