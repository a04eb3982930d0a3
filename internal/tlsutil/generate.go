// Package tlsutil 生成本域的 PKI 证书
//
// 域间协议在 PKI 模式下以证书 CN 识别域名。本包在启动时按需生成自签名 CA
// 和本域证书（CN 为本域名称），该证书同时用作 HTTPS 服务端证书和访问对端时的
// 客户端证书。CA 证书需要登记到对端域。
package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultCertDir 默认证书目录
const DefaultCertDir = "/etc/shongo/certs"

// DefaultValidity 本域证书默认有效期
const DefaultValidity = 365 * 24 * time.Hour

// CertFiles 证书文件路径
type CertFiles struct {
	CAFile   string
	CertFile string
	KeyFile  string
}

// FilesIn 目录下的证书文件路径
func FilesIn(dir string) CertFiles {
	if dir == "" {
		dir = DefaultCertDir
	}
	return CertFiles{
		CAFile:   filepath.Join(dir, "domain-ca.pem"),
		CertFile: filepath.Join(dir, "domain.pem"),
		KeyFile:  filepath.Join(dir, "domain-key.pem"),
	}
}

// Exist 三个文件是否都存在
func (c CertFiles) Exist() bool {
	for _, f := range []string{c.CAFile, c.CertFile, c.KeyFile} {
		if _, err := os.Stat(f); err != nil {
			return false
		}
	}
	return true
}

// Options 证书生成选项
type Options struct {
	// DomainName 本域名称，写入证书 CN
	DomainName string
	// Hosts 额外的 SAN（IP 或域名，逗号分隔），localhost 总是包含
	Hosts        string
	Organization string
	ValidFor     time.Duration
	CertDir      string
	// Force 覆盖已有证书
	Force bool
}

func (o *Options) defaults() error {
	if o.DomainName == "" {
		return fmt.Errorf("tlsutil: domain name is required")
	}
	if o.CertDir == "" {
		o.CertDir = DefaultCertDir
	}
	if o.Organization == "" {
		o.Organization = o.DomainName
	}
	if o.ValidFor <= 0 {
		o.ValidFor = DefaultValidity
	}
	return nil
}

// EnsureDomainCerts 证书不存在时生成，返回文件路径
func EnsureDomainCerts(opts Options) (*CertFiles, error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	files := FilesIn(opts.CertDir)
	if !opts.Force && files.Exist() {
		log.Printf("[tls] Domain certificates found in %s", opts.CertDir)
		return &files, nil
	}
	log.Printf("[tls] Generating certificates for domain %s in %s", opts.DomainName, opts.CertDir)
	if err := GenerateDomainCerts(opts); err != nil {
		return nil, err
	}
	return &files, nil
}

// GenerateDomainCerts 生成 CA 与本域证书
func GenerateDomainCerts(opts Options) error {
	if err := opts.defaults(); err != nil {
		return err
	}
	if err := os.MkdirAll(opts.CertDir, 0755); err != nil {
		return fmt.Errorf("create cert dir: %w", err)
	}

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate CA key: %w", err)
	}
	caTemplate := &x509.Certificate{
		SerialNumber: serial(),
		Subject: pkix.Name{
			Organization: []string{opts.Organization},
			CommonName:   opts.DomainName + " CA",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            1,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return fmt.Errorf("create CA cert: %w", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		return fmt.Errorf("parse CA cert: %w", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate domain key: %w", err)
	}
	hosts := collectHosts(opts.Hosts)
	template := &x509.Certificate{
		SerialNumber: serial(),
		Subject: pkix.Name{
			Organization: []string{opts.Organization},
			CommonName:   opts.DomainName,
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(opts.ValidFor),
		KeyUsage:  x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		// 同一证书用于服务端和访问对端
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
			x509.ExtKeyUsageClientAuth,
		},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}
	der, err := x509.CreateCertificate(rand.Reader, template, caCert, &key.PublicKey, caKey)
	if err != nil {
		return fmt.Errorf("create domain cert: %w", err)
	}

	files := FilesIn(opts.CertDir)
	if err := writePEM(files.CAFile, "CERTIFICATE", caDER, 0644); err != nil {
		return fmt.Errorf("write CA cert: %w", err)
	}
	if err := writePEM(files.CertFile, "CERTIFICATE", der, 0644); err != nil {
		return fmt.Errorf("write domain cert: %w", err)
	}
	keyBytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal domain key: %w", err)
	}
	if err := writePEM(files.KeyFile, "EC PRIVATE KEY", keyBytes, 0600); err != nil {
		return fmt.Errorf("write domain key: %w", err)
	}

	log.Printf("[tls] CA cert:     %s (register it at peer domains)", files.CAFile)
	log.Printf("[tls] Domain cert: %s (CN=%s, SANs: %s)", files.CertFile, opts.DomainName, strings.Join(hosts, ", "))
	return nil
}

func serial() *big.Int {
	n, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	return n
}

// collectHosts 去重后的 SAN，总是包含 localhost 和本机名
func collectHosts(hostsStr string) []string {
	seen := make(map[string]bool)
	var result []string
	add := func(h string) {
		h = strings.TrimSpace(h)
		if h != "" && !seen[h] {
			seen[h] = true
			result = append(result, h)
		}
	}
	for _, h := range []string{"localhost", "127.0.0.1", "::1"} {
		add(h)
	}
	for _, h := range strings.Split(hostsStr, ",") {
		add(h)
	}
	if hostname, err := os.Hostname(); err == nil {
		add(hostname)
	}
	return result
}

func writePEM(path, blockType string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer f.Close()
	return pem.Encode(f, &pem.Block{Type: blockType, Bytes: data})
}
