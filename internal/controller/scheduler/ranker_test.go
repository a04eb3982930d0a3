package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"shongo-controller/internal/controller/availability"
	"shongo-controller/internal/shared/model"
)

func rankedIDs(rooms []availability.AvailableVirtualRoom) []string {
	ids := make([]string, len(rooms))
	for i, r := range rooms {
		ids[i] = r.Resource.ID
	}
	return ids
}

func TestRankers(t *testing.T) {
	wide := availability.AvailableVirtualRoom{
		Resource:       newMCU("wide", 10, model.TechnologyH323, model.TechnologySIP, model.TechnologyAdobeConnect),
		MaxPorts:       10,
		AvailablePorts: 10,
	}
	narrow := availability.AvailableVirtualRoom{
		Resource:       newMCU("narrow", 50, model.TechnologyAdobeConnect),
		MaxPorts:       50,
		AvailablePorts: 50,
	}
	busy := availability.AvailableVirtualRoom{
		Resource:       newMCU("busy", 50, model.TechnologyAdobeConnect),
		MaxPorts:       50,
		AvailablePorts: 5,
	}
	rooms := []availability.AvailableVirtualRoom{busy, narrow, wide}

	tests := []struct {
		name   string
		ranker Ranker
		want   []string
	}{
		{"技术覆盖优先，其次可用端口", NewCapacityRanker(), []string{"wide", "narrow", "busy"}},
		{"占用率优先", NewFullnessRanker(), []string{"busy", "narrow", "wide"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rankedIDs(tt.ranker.Rank(rooms)))
		})
	}
	assert.Equal(t, []string{"busy", "narrow", "wide"}, rankedIDs(rooms), "Rank 不修改输入")
}
