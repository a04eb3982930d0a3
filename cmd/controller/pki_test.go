package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shongo-controller/internal/shared/model"
	"shongo-controller/internal/shared/objstore"
	"shongo-controller/internal/shared/storage/driver/sqlite"
	"shongo-controller/internal/shared/storage/repository"
	"shongo-controller/internal/tlsutil"
	"shongo-controller/pkg/logging"
)

func generate(t *testing.T, domain string) tlsutil.CertFiles {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, tlsutil.GenerateDomainCerts(tlsutil.Options{DomainName: domain, CertDir: dir}))
	return tlsutil.FilesIn(dir)
}

func TestClientCAs_IncludesRegisteredDomains(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	dialect := sqlite.NewDialect()
	require.NoError(t, dialect.AutoMigrate(db))
	store := repository.NewStore(db, dialect)
	defer store.Close()

	local := generate(t, "cz.cesnet")
	peer := generate(t, "sk.sanet")

	certs := objstore.NewCertificateStore(objstore.NewMemoryObjectStore())
	peerCA, err := os.ReadFile(peer.CAFile)
	require.NoError(t, err)
	key, err := certs.Put(ctx, "sk.sanet", peerCA)
	require.NoError(t, err)
	require.NoError(t, store.CreateDomain(ctx, &model.Domain{ID: "d-sk", Name: "sk.sanet", CertificateKey: key}))

	cas, err := newClientCAs(local.CAFile, certs, store, logging.Discard())
	require.NoError(t, err)
	pool := cas.Pool(ctx)

	for _, files := range []tlsutil.CertFiles{local, peer} {
		pair, err := tls.LoadX509KeyPair(files.CertFile, files.KeyFile)
		require.NoError(t, err)
		cert, err := x509.ParseCertificate(pair.Certificate[0])
		require.NoError(t, err)
		_, err = cert.Verify(x509.VerifyOptions{Roots: pool, KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}})
		assert.NoError(t, err, cert.Subject.CommonName)
	}

	_, err = newClientCAs("/nonexistent/ca.pem", certs, store, logging.Discard())
	assert.Error(t, err)
}

func TestServerTLS_PeerCertificate(t *testing.T) {
	local := generate(t, "cz.cesnet")
	peer := generate(t, "sk.sanet")

	cas, err := newClientCAs(peer.CAFile, nil, nil, logging.Discard())
	require.NoError(t, err)
	tlsCfg, err := serverTLSConfig(local.CertFile, local.KeyFile, cas)
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.TLS.PeerCertificates) == 0 {
			io.WriteString(w, "anonymous")
			return
		}
		io.WriteString(w, r.TLS.PeerCertificates[0].Subject.CommonName)
	}))
	srv.TLS = tlsCfg
	srv.StartTLS()
	defer srv.Close()

	roots := x509.NewCertPool()
	data, err := os.ReadFile(local.CAFile)
	require.NoError(t, err)
	require.True(t, roots.AppendCertsFromPEM(data))

	get := func(certs []tls.Certificate) string {
		client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: roots, Certificates: certs}}}
		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}

	assert.Equal(t, "anonymous", get(nil), "客户端证书可选")
	pair, err := tls.LoadX509KeyPair(peer.CertFile, peer.KeyFile)
	require.NoError(t, err)
	assert.Equal(t, "sk.sanet", get([]tls.Certificate{pair}))
}

func TestRedirectingListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	rl := &redirectingListener{Listener: ln}
	defer rl.Close()
	go func() {
		for {
			conn, err := rl.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	client := &http.Client{
		Timeout:       2 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Get("http://" + ln.Addr().String() + "/domain/status?x=1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "https://"+ln.Addr().String()+"/domain/status?x=1", resp.Header.Get("Location"))
}

func TestCACertEndpoint(t *testing.T) {
	files := generate(t, "cz.cesnet")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	h := withCACertEndpoint(next, files.CAFile, logging.Discard())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/domain/ca.pem", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "-----BEGIN CERTIFICATE-----"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestServerErrorWriter(t *testing.T) {
	var buf strings.Builder
	logger := logging.NewWithWriter(&buf, slog.LevelDebug, "text", "http")
	l := newServerErrorLog(logger)
	l.Print("http: TLS handshake error from 1.2.3.4: EOF")
	l.Print("http: Accept error: too many open files")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "too many open files")
}
