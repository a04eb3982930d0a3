// Package domains 跨域协议客户端
//
// Connector 以本域身份调用对端控制器的 /domain/* 接口；
// CachedConnector 在其上定期缓存对端的资源能力与预约。
package domains

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"shongo-controller/internal/shared/model"
	"shongo-controller/pkg/logging"
)

// DefaultCommandTimeout 单次跨域调用超时
const DefaultCommandTimeout = 30 * time.Second

// DomainSource 已登记的域（由 storage.DomainStore 实现）
type DomainSource interface {
	GetDomain(ctx context.Context, id string) (*model.Domain, error)
	ListDomains(ctx context.Context) ([]*model.Domain, error)
}

// Options Connector 配置
type Options struct {
	Domains DomainSource
	// LocalDomain 本域名称，登录对端时作为用户名
	LocalDomain string
	// Password 登录对端时使用的密码
	Password string
	Timeout  time.Duration
	// TLSConfig 对端 CA 与 PKI 客户端证书，为空时使用系统默认
	TLSConfig  *tls.Config
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Connector 跨域协议客户端
type Connector struct {
	domains     DomainSource
	localDomain string
	password    string
	timeout     time.Duration
	client      *http.Client
	logger      *logging.Logger

	mu     sync.Mutex
	tokens map[string]string // domainID -> access token
}

// AllocateRequest 跨域资源预约请求
type AllocateRequest struct {
	Slot                 model.Interval
	ResourceID           string
	UserID               string
	Description          string
	ReservationRequestID string
}

// NewConnector 创建跨域客户端
func NewConnector(opts Options) (*Connector, error) {
	if opts.Domains == nil {
		return nil, fmt.Errorf("domains: domain source is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultCommandTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default("domains")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
		if opts.TLSConfig != nil {
			client.Transport = &http.Transport{TLSClientConfig: opts.TLSConfig}
		}
	}
	return &Connector{
		domains:     opts.Domains,
		localDomain: opts.LocalDomain,
		password:    opts.Password,
		timeout:     opts.Timeout,
		client:      client,
		logger:      opts.Logger,
		tokens:      make(map[string]string),
	}, nil
}

// ============================================================================
// 域列表
// ============================================================================

// ForeignDomains 已登记的对端域（不含本域）
func (c *Connector) ForeignDomains(ctx context.Context) ([]*model.Domain, error) {
	all, err := c.domains.ListDomains(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]*model.Domain, 0, len(all))
	for _, d := range all {
		if d.Name == c.localDomain || d.URL == "" {
			continue
		}
		result = append(result, d)
	}
	return result, nil
}

func (c *Connector) allocatableDomains(ctx context.Context) ([]*model.Domain, error) {
	foreign, err := c.ForeignDomains(ctx)
	if err != nil {
		return nil, err
	}
	result := foreign[:0]
	for _, d := range foreign {
		if d.Allocatable {
			result = append(result, d)
		}
	}
	return result, nil
}

func (c *Connector) domain(ctx context.Context, id string) (*model.Domain, error) {
	d, err := c.domains.GetDomain(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil || d.Name == c.localDomain || d.URL == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, id)
	}
	return d, nil
}

// ============================================================================
// 协议操作
// ============================================================================

// Login 登录对端域，缓存并返回访问令牌
func (c *Connector) Login(ctx context.Context, d *model.Domain) (string, error) {
	var login model.DomainLogin
	err := c.call(ctx, d, http.MethodGet, "/domain/login", nil, nil, &login, func(req *http.Request) {
		req.SetBasicAuth(c.localDomain, c.password)
	})
	if err != nil {
		return "", err
	}
	if login.AccessToken == "" {
		return "", &ConnectError{Domain: d.Name, URL: d.URL, Status: http.StatusOK, Message: "empty access token"}
	}
	c.mu.Lock()
	c.tokens[d.ID] = login.AccessToken
	c.mu.Unlock()
	return login.AccessToken, nil
}

// DomainStatuses 并行查询全部对端域的状态，不可达的域为 NOT_AVAILABLE
func (c *Connector) DomainStatuses(ctx context.Context) ([]*model.Domain, error) {
	foreign, err := c.ForeignDomains(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]*model.Domain, len(foreign))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range foreign {
		g.Go(func() error {
			dc := *d
			dc.Status = model.DomainStatusNotAvailable
			var resp model.DomainStatusResponse
			if err := c.call(gctx, d, http.MethodGet, "/domain/status", nil, nil, &resp, nil); err == nil {
				dc.Status = resp.Status
			}
			result[i] = &dc
			return nil
		})
	}
	g.Wait()
	return result, nil
}

// ListForeignCapabilities 并行查询全部可分配对端域的资源能力
//
// 结果按域 ID 分组；查询失败的域不出现在结果中。
func (c *Connector) ListForeignCapabilities(ctx context.Context, specs []model.CapabilitySpecificationRequest, slot *model.Interval) (map[string][]*model.DomainCapability, error) {
	targets, err := c.allocatableDomains(ctx)
	if err != nil {
		return nil, err
	}
	return c.listCapabilities(ctx, targets, specs, slot), nil
}

func (c *Connector) listCapabilities(ctx context.Context, targets []*model.Domain, specs []model.CapabilitySpecificationRequest, slot *model.Interval) map[string][]*model.DomainCapability {
	var mu sync.Mutex
	result := make(map[string][]*model.DomainCapability, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range targets {
		g.Go(func() error {
			caps, err := c.Capabilities(gctx, d, specs, slot)
			if err != nil {
				return nil
			}
			mu.Lock()
			result[d.ID] = caps
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return result
}

// Capabilities 查询单个对端域开放给本域的资源能力
func (c *Connector) Capabilities(ctx context.Context, d *model.Domain, specs []model.CapabilitySpecificationRequest, slot *model.Interval) ([]*model.DomainCapability, error) {
	q := url.Values{}
	if slot != nil {
		q.Set("slot", slot.String())
	}
	if specs == nil {
		specs = []model.CapabilitySpecificationRequest{}
	}
	var caps []*model.DomainCapability
	if err := c.authorized(ctx, d, http.MethodPost, "/domain/resource/list", q, specs, &caps); err != nil {
		return nil, err
	}
	return caps, nil
}

// AllocateResource 在对端域预约资源
func (c *Connector) AllocateResource(ctx context.Context, domainID string, req AllocateRequest) (*model.ForeignReservation, error) {
	d, err := c.domain(ctx, domainID)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("slot", req.Slot.String())
	q.Set("resourceId", req.ResourceID)
	if req.UserID != "" {
		q.Set("userId", req.UserID)
	}
	if req.Description != "" {
		q.Set("description", req.Description)
	}
	if req.ReservationRequestID != "" {
		q.Set("reservationRequestId", req.ReservationRequestID)
	}
	var fr model.ForeignReservation
	if err := c.authorized(ctx, d, http.MethodGet, "/domain/resource/allocate", q, nil, &fr); err != nil {
		return nil, err
	}
	return &fr, nil
}

// GetReservationByRequest 查询对端域的预约请求
func (c *Connector) GetReservationByRequest(ctx context.Context, domainID, requestID string) (*model.ForeignReservation, error) {
	d, err := c.domain(ctx, domainID)
	if err != nil {
		return nil, err
	}
	var fr model.ForeignReservation
	q := url.Values{"reservationRequestId": {requestID}}
	if err := c.authorized(ctx, d, http.MethodGet, "/domain/reservation", q, nil, &fr); err != nil {
		return nil, err
	}
	return &fr, nil
}

// DeallocateReservation 删除对端域的预约请求
func (c *Connector) DeallocateReservation(ctx context.Context, domainID, requestID string) error {
	d, err := c.domain(ctx, domainID)
	if err != nil {
		return err
	}
	var status model.Status
	q := url.Values{"reservationRequestId": {requestID}}
	if err := c.authorized(ctx, d, http.MethodGet, "/domain/reservation/delete", q, nil, &status); err != nil {
		return err
	}
	if status.Code != model.StatusOK {
		return &ConnectError{Domain: d.Name, URL: d.URL, Status: http.StatusOK, Message: string(status.Code) + " " + status.Message}
	}
	return nil
}

// ListReservations 对端域开放给本域的资源上的预约
func (c *Connector) ListReservations(ctx context.Context, domainID, resourceID string, slot *model.Interval) ([]*model.ForeignReservation, error) {
	d, err := c.domain(ctx, domainID)
	if err != nil {
		return nil, err
	}
	return c.reservations(ctx, d, resourceID, slot)
}

func (c *Connector) reservations(ctx context.Context, d *model.Domain, resourceID string, slot *model.Interval) ([]*model.ForeignReservation, error) {
	q := url.Values{}
	if resourceID != "" {
		q.Set("resourceId", resourceID)
	}
	if slot != nil {
		q.Set("slot", slot.String())
	}
	var list []*model.ForeignReservation
	if err := c.authorized(ctx, d, http.MethodGet, "/domain/resource/reservation/list", q, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ============================================================================
// HTTP 调用
// ============================================================================

// authorized 携带访问令牌调用，401 时重新登录并重试一次
func (c *Connector) authorized(ctx context.Context, d *model.Domain, method, path string, query url.Values, body, out interface{}) error {
	c.mu.Lock()
	token := c.tokens[d.ID]
	c.mu.Unlock()

	for attempt := 0; ; attempt++ {
		if token == "" {
			var err error
			if token, err = c.Login(ctx, d); err != nil {
				return err
			}
		}
		bearer := token
		err := c.call(ctx, d, method, path, query, body, out, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+bearer)
		})
		var ce *ConnectError
		if attempt == 0 && errors.As(err, &ce) && ce.Status == http.StatusUnauthorized {
			c.mu.Lock()
			delete(c.tokens, d.ID)
			c.mu.Unlock()
			token = ""
			continue
		}
		return err
	}
}

// call 单次请求，受 command timeout 约束
func (c *Connector) call(ctx context.Context, d *model.Domain, method, path string, query url.Values, body, out interface{}, decorate func(*http.Request)) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	target := strings.TrimRight(d.URL, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	err := c.roundTrip(ctx, d, method, target, body, out, decorate)
	c.logger.DomainRequestLog(d.Name, method+" "+path, time.Since(start), err)
	return err
}

func (c *Connector) roundTrip(ctx context.Context, d *model.Domain, method, target string, body, out interface{}, decorate func(*http.Request)) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &ConnectError{Domain: d.Name, URL: target, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if decorate != nil {
		decorate(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &ConnectError{Domain: d.Name, URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ce := &ConnectError{Domain: d.Name, URL: target, Status: resp.StatusCode}
		var status model.Status
		if json.NewDecoder(resp.Body).Decode(&status) == nil {
			ce.Message = status.Message
		}
		return ce
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ConnectError{Domain: d.Name, URL: target, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
