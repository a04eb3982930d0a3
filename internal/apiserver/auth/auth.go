// Package auth 域间认证：访问令牌、密码哈希、证书身份
//
// 对端域通过 Basic 认证（域名:密码）登录换取 JWT 访问令牌，之后以
// Bearer 令牌或 Basic "<token>:" 访问；启用 PKI 时客户端证书 CN 即为域名。
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"shongo-controller/internal/shared/model"
)

// contextKey context 键类型
type contextKey string

const ctxKeyDomain contextKey = "auth_domain"

const tokenTypeAccess = "access"

// ErrNotAuthorized 缺少证书、令牌无效或过期、凭据错误
var ErrNotAuthorized = errors.New("not authorized")

// Config 认证配置
type Config struct {
	JWTSecret      string        `yaml:"-"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	// PKIClientAuth 接受客户端证书作为域身份
	PKIClientAuth bool `yaml:"pki_client_auth"`
}

// DefaultConfig 返回默认认证配置
func DefaultConfig() Config {
	return Config{AccessTokenTTL: time.Hour}
}

// ============================================================================
// 密码哈希
// ============================================================================

// HashPassword 使用 bcrypt 哈希密码
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	return string(bytes), err
}

// CheckPassword 验证密码
func CheckPassword(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ============================================================================
// JWT Token
// ============================================================================

// Claims JWT 声明，Subject 为域 ID
type Claims struct {
	jwt.RegisteredClaims
	Domain string `json:"domain,omitempty"`
	Type   string `json:"type,omitempty"`
}

// GenerateAccessToken 为域生成访问令牌
func GenerateAccessToken(cfg Config, d *model.Domain) (string, error) {
	if cfg.JWTSecret == "" {
		return "", fmt.Errorf("jwt secret is not configured")
	}
	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = DefaultConfig().AccessTokenTTL
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   d.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Domain: d.Name,
		Type:   tokenTypeAccess,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ParseToken 解析并验证 JWT
func ParseToken(cfg Config, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Type != tokenTypeAccess {
		return nil, fmt.Errorf("invalid token type %q", claims.Type)
	}
	return claims, nil
}

// ============================================================================
// Context 辅助函数
// ============================================================================

// WithDomain 将已认证的域注入 context
func WithDomain(ctx context.Context, d *model.Domain) context.Context {
	return context.WithValue(ctx, ctxKeyDomain, d)
}

// GetDomain 从 context 获取已认证的域
func GetDomain(ctx context.Context) *model.Domain {
	d, _ := ctx.Value(ctxKeyDomain).(*model.Domain)
	return d
}
