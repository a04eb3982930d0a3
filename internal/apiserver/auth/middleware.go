package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"strings"

	"shongo-controller/internal/shared/model"
)

// DomainLookup 域查询（由 storage.DomainStore 实现）
type DomainLookup interface {
	GetDomain(ctx context.Context, id string) (*model.Domain, error)
	GetDomainByName(ctx context.Context, name string) (*model.Domain, error)
}

// Authenticator 域间请求认证
type Authenticator struct {
	cfg     Config
	domains DomainLookup
}

// NewAuthenticator 创建认证器
func NewAuthenticator(cfg Config, domains DomainLookup) *Authenticator {
	return &Authenticator{cfg: cfg, domains: domains}
}

// Login 以 Basic 认证（域名:密码）或客户端证书登录，返回访问令牌
func (a *Authenticator) Login(r *http.Request) (string, *model.Domain, error) {
	d, err := a.certificateDomain(r)
	if err != nil {
		return "", nil, err
	}
	if d == nil {
		name, password, ok := r.BasicAuth()
		if !ok {
			return "", nil, fmt.Errorf("%w: missing credentials", ErrNotAuthorized)
		}
		d, err = a.domains.GetDomainByName(r.Context(), name)
		if err != nil {
			return "", nil, err
		}
		if d == nil || !CheckPassword(password, d.PasswordHash) {
			return "", nil, fmt.Errorf("%w: invalid credentials for %q", ErrNotAuthorized, name)
		}
	}
	token, err := GenerateAccessToken(a.cfg, d)
	if err != nil {
		return "", nil, err
	}
	return token, d, nil
}

// Authenticate 识别请求所属的域
//
// 顺序：客户端证书（启用 PKI 时） > Bearer 令牌 > Basic "<token>:"。
func (a *Authenticator) Authenticate(r *http.Request) (*model.Domain, error) {
	d, err := a.certificateDomain(r)
	if err != nil || d != nil {
		return d, err
	}

	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return nil, fmt.Errorf("%w: missing certificate or access token", ErrNotAuthorized)
	}
	claims, err := ParseToken(a.cfg, token)
	if err != nil {
		log.Printf("[auth] token parse error: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrNotAuthorized, err)
	}
	d, err = a.domains.GetDomain(r.Context(), claims.Subject)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("%w: unknown domain %s", ErrNotAuthorized, claims.Subject)
	}
	return d, nil
}

// certificateDomain 客户端证书 CN 对应的域，没有证书时返回 (nil, nil)
func (a *Authenticator) certificateDomain(r *http.Request) (*model.Domain, error) {
	if !a.cfg.PKIClientAuth || r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return nil, nil
	}
	cn := r.TLS.PeerCertificates[0].Subject.CommonName
	d, err := a.domains.GetDomainByName(r.Context(), cn)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("%w: no domain for certificate %q", ErrNotAuthorized, cn)
	}
	return d, nil
}

// bearerToken 提取 "Bearer <token>" 或 "Basic base64(<token>:)" 中的令牌
func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	switch {
	case strings.EqualFold(parts[0], "bearer"):
		return strings.TrimSpace(parts[1])
	case strings.EqualFold(parts[0], "basic"):
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(parts[1]))
		if err != nil {
			return ""
		}
		token, _, _ := strings.Cut(string(raw), ":")
		return token
	default:
		return ""
	}
}

// Middleware 创建域认证中间件，认证失败时交给 deny 输出响应
func Middleware(a *Authenticator, deny func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := a.Authenticate(r)
			if err != nil {
				deny(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithDomain(r.Context(), d)))
		})
	}
}
