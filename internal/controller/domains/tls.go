package domains

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"shongo-controller/internal/shared/model"
)

// CertPooler 对端 CA 证书来源（由 objstore.CertificateStore 实现）
type CertPooler interface {
	CertPool(ctx context.Context, base *x509.CertPool, keys []string) (*x509.CertPool, error)
}

// ClientTLSConfig 访问对端域使用的 TLS 配置
//
// RootCAs 为系统根证书加上已登记域的 CA；certFile/keyFile 非空时附带客户端证书（PKI 认证）。
func ClientTLSConfig(ctx context.Context, certs CertPooler, domains []*model.Domain, certFile, keyFile string) (*tls.Config, error) {
	base, err := x509.SystemCertPool()
	if err != nil {
		base = x509.NewCertPool()
	}
	var keys []string
	for _, d := range domains {
		if d.CertificateKey != "" {
			keys = append(keys, d.CertificateKey)
		}
	}
	pool := base
	if certs != nil && len(keys) > 0 {
		if pool, err = certs.CertPool(ctx, base, keys); err != nil {
			return nil, fmt.Errorf("load domain certificates: %w", err)
		}
	}

	cfg := &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
