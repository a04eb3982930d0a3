package domains

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"shongo-controller/internal/shared/cache"
	"shongo-controller/internal/shared/model"
)

// DefaultRefreshRate 能力缓存刷新周期
const DefaultRefreshRate = time.Minute

// CachedConnector 带能力缓存的跨域客户端
//
// 定期把可分配对端域的 RESOURCE 能力和预约写入缓存；
// 不带条件的 RESOURCE 能力查询直接读缓存，未命中的域回退到实时查询。
type CachedConnector struct {
	*Connector
	cache   cache.DomainCapabilityCache
	refresh time.Duration

	mu      sync.Mutex
	running bool
}

// NewCachedConnector 创建带缓存的跨域客户端
func NewCachedConnector(c *Connector, capCache cache.DomainCapabilityCache, refresh time.Duration) *CachedConnector {
	if refresh <= 0 {
		refresh = DefaultRefreshRate
	}
	return &CachedConnector{Connector: c, cache: capCache, refresh: refresh}
}

// Start 周期刷新缓存，阻塞直到 ctx 取消
func (c *CachedConnector) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	log.Printf("[domains.cache.start] refresh=%s", c.refresh)
	ticker := time.NewTicker(c.refresh)
	defer ticker.Stop()

	for {
		if err := c.Refresh(ctx); err != nil {
			log.Printf("[domains.cache.refresh.failed] error=%v", err)
		}
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
			log.Printf("[domains.cache.stopped]")
			return
		case <-ticker.C:
		}
	}
}

// Refresh 刷新全部可分配对端域的缓存
//
// 单个域失败只记录日志，旧的缓存保留。
func (c *CachedConnector) Refresh(ctx context.Context) error {
	targets, err := c.allocatableDomains(ctx)
	if err != nil {
		return err
	}
	resourceOnly := []model.CapabilitySpecificationRequest{{CapabilityType: model.DomainCapabilityResource}}

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range targets {
		g.Go(func() error {
			caps, err := c.Capabilities(gctx, d, resourceOnly, nil)
			if err != nil {
				return nil
			}
			if err := c.cache.SetDomainCapabilities(gctx, d.ID, caps); err != nil {
				log.Printf("[domains.cache.set.failed] domain=%s error=%v", d.Name, err)
				return nil
			}
			reservations, err := c.reservations(gctx, d, "", nil)
			if err != nil {
				return nil
			}
			if err := c.cache.SetDomainReservations(gctx, d.ID, reservations); err != nil {
				log.Printf("[domains.cache.set.failed] domain=%s error=%v", d.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ListForeignCapabilities 查询对端域资源能力，无条件的 RESOURCE 查询优先读缓存
func (c *CachedConnector) ListForeignCapabilities(ctx context.Context, specs []model.CapabilitySpecificationRequest, slot *model.Interval) (map[string][]*model.DomainCapability, error) {
	if slot != nil || !plainResourceQuery(specs) {
		return c.Connector.ListForeignCapabilities(ctx, specs, slot)
	}
	targets, err := c.allocatableDomains(ctx)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]*model.DomainCapability, len(targets))
	var missing []*model.Domain
	for _, d := range targets {
		caps, ok, err := c.cache.GetDomainCapabilities(ctx, d.ID)
		if err != nil || !ok {
			missing = append(missing, d)
			continue
		}
		result[d.ID] = caps
	}
	if len(missing) > 0 {
		for id, caps := range c.listCapabilities(ctx, missing, specs, nil) {
			result[id] = caps
			if err := c.cache.SetDomainCapabilities(ctx, id, caps); err != nil {
				log.Printf("[domains.cache.set.failed] domain=%s error=%v", id, err)
			}
		}
	}
	return result, nil
}

// CachedReservations 缓存中的对端域预约，未命中时实时查询
func (c *CachedConnector) CachedReservations(ctx context.Context, domainID string) ([]*model.ForeignReservation, error) {
	list, ok, err := c.cache.GetDomainReservations(ctx, domainID)
	if err == nil && ok {
		return list, nil
	}
	return c.ListReservations(ctx, domainID, "", nil)
}

// Forget 清除域的缓存（域被删除或修改后调用）
func (c *CachedConnector) Forget(ctx context.Context, domainID string) error {
	c.Connector.mu.Lock()
	delete(c.Connector.tokens, domainID)
	c.Connector.mu.Unlock()
	return c.cache.DeleteDomain(ctx, domainID)
}

func plainResourceQuery(specs []model.CapabilitySpecificationRequest) bool {
	if len(specs) == 0 {
		return false
	}
	for _, s := range specs {
		if s.CapabilityType != model.DomainCapabilityResource || s.LicenseCount != nil || len(s.TechnologyVariants) > 0 {
			return false
		}
	}
	return true
}
