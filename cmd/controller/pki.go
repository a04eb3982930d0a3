package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"shongo-controller/internal/config"
	"shongo-controller/internal/shared/objstore"
	"shongo-controller/internal/shared/storage"
	"shongo-controller/internal/tlsutil"
	"shongo-controller/pkg/logging"
)

// clientCAReload 对端域 CA 池的重新加载间隔
const clientCAReload = time.Minute

// clientCAs 校验对端客户端证书的 CA 池
//
// 包含 tls.ca_file 与已登记域上传的 CA；新登记的证书最迟 clientCAReload 后生效。
type clientCAs struct {
	base    *x509.CertPool
	certs   *objstore.CertificateStore
	domains storage.DomainStore
	logger  *logging.Logger

	mu     sync.Mutex
	pool   *x509.CertPool
	loaded time.Time
}

func newClientCAs(caFile string, certs *objstore.CertificateStore, domains storage.DomainStore, logger *logging.Logger) (*clientCAs, error) {
	base := x509.NewCertPool()
	if caFile != "" {
		data, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		if !base.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("no certificates in %s", caFile)
		}
	}
	return &clientCAs{base: base, certs: certs, domains: domains, logger: logger}, nil
}

// Pool 当前 CA 池，加载失败时沿用上一次的结果
func (c *clientCAs) Pool(ctx context.Context) *x509.CertPool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool != nil && time.Since(c.loaded) < clientCAReload {
		return c.pool
	}
	pool, err := c.load(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Reload domain CA certificates failed")
		if c.pool == nil {
			return c.base
		}
		return c.pool
	}
	c.pool, c.loaded = pool, time.Now()
	return pool
}

func (c *clientCAs) load(ctx context.Context) (*x509.CertPool, error) {
	if c.certs == nil {
		return c.base, nil
	}
	list, err := c.domains.ListDomains(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(list))
	for _, d := range list {
		keys = append(keys, d.CertificateKey)
	}
	return c.certs.CertPool(ctx, c.base.Clone(), keys)
}

// serverTLSConfig 服务端 TLS 配置，cas 非空时接受并校验对端客户端证书
func serverTLSConfig(certFile, keyFile string, cas *clientCAs) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load server certificate: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if cas != nil {
		base := cfg.Clone()
		cfg.GetConfigForClient = func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
			perConn := base.Clone()
			perConn.ClientAuth = tls.VerifyClientCertIfGiven
			perConn.ClientCAs = cas.Pool(hello.Context())
			return perConn, nil
		}
	}
	return cfg, nil
}

// resolveServerCerts 未配置证书文件且开启 auto_cert 时生成本域证书
func resolveServerCerts(cfg *config.Config) error {
	if !cfg.TLS.Enabled || !cfg.TLS.AutoCert || (cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "") {
		return nil
	}
	files, err := tlsutil.EnsureDomainCerts(tlsutil.Options{
		DomainName: cfg.InterDomain.LocalDomain,
		CertDir:    cfg.TLS.CertDir,
	})
	if err != nil {
		return err
	}
	cfg.TLS.CertFile, cfg.TLS.KeyFile = files.CertFile, files.KeyFile
	if cfg.TLS.CAFile == "" {
		cfg.TLS.CAFile = files.CAFile
	}
	return nil
}

// withCACertEndpoint 在 /domain/ca.pem 提供本域 CA，供对端域下载后登记
func withCACertEndpoint(next http.Handler, caFile string, logger *logging.Logger) http.Handler {
	if caFile == "" {
		return next
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		logger.WithError(err).Warn("CA certificate endpoint disabled", "file", caFile)
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/domain/ca.pem" {
			w.Header().Set("Content-Type", "application/x-pem-file")
			w.Header().Set("Content-Disposition", `attachment; filename="domain-ca.pem"`)
			w.Write(data)
			return
		}
		next.ServeHTTP(w, r)
	})
}
