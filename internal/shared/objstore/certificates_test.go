package objstore

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedPEM(t *testing.T, cn string) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestParseCertificates(t *testing.T) {
	certs, err := ParseCertificates(selfSignedPEM(t, "cz.cesnet"))
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, "cz.cesnet", certs[0].Subject.CommonName)

	_, err = ParseCertificates([]byte("not a certificate"))
	assert.ErrorIs(t, err, ErrInvalidCertificate)

	bad := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("garbage")})
	_, err = ParseCertificates(bad)
	assert.ErrorIs(t, err, ErrInvalidCertificate)
}

func TestCertificateStore(t *testing.T) {
	ctx := context.Background()
	store := NewCertificateStore(NewMemoryObjectStore())

	_, err := store.Put(ctx, "Broken", []byte("nope"))
	assert.ErrorIs(t, err, ErrInvalidCertificate)

	key, err := store.Put(ctx, "CZ.Cesnet", selfSignedPEM(t, "cz.cesnet"))
	require.NoError(t, err)
	assert.Equal(t, "domains/cz.cesnet/ca.pem", key)

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	pool, err := store.CertPool(ctx, nil, []string{key, "", "domains/missing/ca.pem"})
	require.NoError(t, err)
	assert.NotNil(t, pool)

	require.NoError(t, store.Delete(ctx, key))
	data, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, data)
}
