package objstore

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCertificate 上传内容不是 PEM 编码的 X.509 证书
var ErrInvalidCertificate = errors.New("invalid PEM certificate")

// ObjectStore 证书存储依赖的对象存储操作（*Client 实现）
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// CertificateStore 对端域 CA 证书存储
type CertificateStore struct {
	objects ObjectStore
}

// NewCertificateStore 创建证书存储
func NewCertificateStore(objects ObjectStore) *CertificateStore {
	return &CertificateStore{objects: objects}
}

// CertificateKey 域证书的对象键（保存在 Domain.CertificateKey 中）
func CertificateKey(domainName string) string {
	return "domains/" + strings.ToLower(domainName) + "/ca.pem"
}

// Put 校验并保存域证书，返回对象键
func (s *CertificateStore) Put(ctx context.Context, domainName string, pemData []byte) (string, error) {
	if _, err := ParseCertificates(pemData); err != nil {
		return "", err
	}
	key := CertificateKey(domainName)
	if err := s.objects.Put(ctx, key, pemData, "application/x-pem-file"); err != nil {
		return "", err
	}
	return key, nil
}

// Get 读取证书，不存在时返回 (nil, nil)
func (s *CertificateStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.objects.Get(ctx, key)
}

// Delete 删除证书
func (s *CertificateStore) Delete(ctx context.Context, key string) error {
	return s.objects.Delete(ctx, key)
}

// CertPool 把给定对象键对应的证书加入证书池，缺失的键被跳过
func (s *CertificateStore) CertPool(ctx context.Context, base *x509.CertPool, keys []string) (*x509.CertPool, error) {
	pool := base
	if pool == nil {
		pool = x509.NewCertPool()
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		data, err := s.objects.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if data == nil {
			continue
		}
		certs, err := ParseCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		for _, c := range certs {
			pool.AddCert(c)
		}
	}
	return pool, nil
}

// ParseCertificates 解析 PEM 中的全部证书，至少需要一个
func ParseCertificates(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
		}
		certs = append(certs, c)
	}
	if len(certs) == 0 {
		return nil, ErrInvalidCertificate
	}
	return certs, nil
}
