package scheduler

import "fmt"

const (
	RankingCapacity = "capacity"
	RankingFullness = "fullness"
)

// CallInitiation 呼叫发起方
type CallInitiation string

const (
	// CallInitiationVirtualRoom 会议室呼叫端点
	CallInitiationVirtualRoom CallInitiation = "VIRTUAL_ROOM"
	// CallInitiationTerminal 独立终端呼入会议室
	CallInitiationTerminal CallInitiation = "TERMINAL"
)

// Config 调度器配置
type Config struct {
	// Ranking 会议室排序策略
	// 可选值: "capacity", "fullness"
	Ranking string `yaml:"ranking"`

	// CallInitiation 默认呼叫发起方
	CallInitiation CallInitiation `yaml:"call_initiation"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Ranking:        RankingCapacity,
		CallInitiation: CallInitiationVirtualRoom,
	}
}

// Validate 验证配置并填充默认值
func (c *Config) Validate() error {
	if c.Ranking == "" {
		c.Ranking = RankingCapacity
	}
	if c.CallInitiation == "" {
		c.CallInitiation = CallInitiationVirtualRoom
	}
	switch c.Ranking {
	case RankingCapacity, RankingFullness:
	default:
		return fmt.Errorf("unknown scheduler ranking: %q", c.Ranking)
	}
	switch c.CallInitiation {
	case CallInitiationVirtualRoom, CallInitiationTerminal:
	default:
		return fmt.Errorf("unknown call initiation: %q", c.CallInitiation)
	}
	return nil
}

// BuildRanker 根据配置构建排序策略
func (c *Config) BuildRanker() Ranker {
	switch c.Ranking {
	case RankingFullness:
		return NewFullnessRanker()
	default:
		return NewCapacityRanker()
	}
}
