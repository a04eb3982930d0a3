package interdomain

import (
	"context"

	"shongo-controller/internal/shared/model"
)

// capabilities 按查询条件汇总开放给域 d 的资源能力
//
// 同一资源只返回一次；给定 slot 时 Available 反映该时间段内的可用性。
func (h *Handler) capabilities(ctx context.Context, d *model.Domain, specs []model.CapabilitySpecificationRequest, slot *model.Interval) ([]model.DomainCapability, error) {
	if len(specs) == 0 {
		specs = []model.CapabilitySpecificationRequest{
			{CapabilityType: model.DomainCapabilityResource},
			{CapabilityType: model.DomainCapabilityVirtualRoom},
		}
	}

	var freePorts map[string]int
	if slot != nil {
		freePorts = make(map[string]int)
		for _, room := range h.booking.FindAvailableVirtualRooms(*slot, 0, nil) {
			freePorts[room.Resource.ID] = room.AvailablePorts
		}
	}

	result := make([]model.DomainCapability, 0)
	seen := make(map[model.DomainCapabilityType]map[string]bool)
	for _, spec := range specs {
		if spec.CapabilityType != model.DomainCapabilityResource && spec.CapabilityType != model.DomainCapabilityVirtualRoom {
			return nil, badRequest("unknown capability type %q", spec.CapabilityType)
		}
		assigned, err := h.domains.ListDomainResources(ctx, d.ID, spec.CapabilityType)
		if err != nil {
			return nil, err
		}
		if seen[spec.CapabilityType] == nil {
			seen[spec.CapabilityType] = make(map[string]bool)
		}
		for _, dr := range assigned {
			if seen[spec.CapabilityType][dr.ResourceID] {
				continue
			}
			resource, err := h.booking.GetResource(ctx, dr.ResourceID)
			if err != nil {
				return nil, err
			}
			if resource == nil {
				continue
			}
			c := dr.ToCapability(resource)
			if !matchesVariants(c.Technologies, spec.TechnologyVariants) {
				continue
			}
			if slot != nil {
				c.Available = h.availableIn(c, spec, freePorts, *slot)
			}
			if spec.LicenseCount != nil && c.Type == model.DomainCapabilityVirtualRoom && c.LicenseCount > 0 && c.LicenseCount < *spec.LicenseCount {
				continue
			}
			seen[spec.CapabilityType][dr.ResourceID] = true
			if c.Type != model.DomainCapabilityResource {
				c.ID = ""
			}
			result = append(result, c)
		}
	}
	return result, nil
}

func (h *Handler) availableIn(c model.DomainCapability, spec model.CapabilitySpecificationRequest, freePorts map[string]int, slot model.Interval) bool {
	if !c.Available {
		return false
	}
	if c.Type == model.DomainCapabilityResource {
		return h.booking.IsResourceAvailable(c.ID, slot)
	}
	required := 1
	if spec.LicenseCount != nil && *spec.LicenseCount > 0 {
		required = *spec.LicenseCount
	}
	return freePorts[c.ID] >= required
}

// matchesVariants 能力技术满足任一技术组合（没有组合时总是满足）
func matchesVariants(techs model.Technologies, variants []model.Technologies) bool {
	if len(variants) == 0 {
		return true
	}
	for _, v := range variants {
		if techs.ContainsAll(v) {
			return true
		}
	}
	return false
}
