package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shongo-controller/internal/shared/model"
)

type fakeDomains map[string]*model.Domain

func (f fakeDomains) GetDomain(_ context.Context, id string) (*model.Domain, error) {
	return f[id], nil
}

func (f fakeDomains) GetDomainByName(_ context.Context, name string) (*model.Domain, error) {
	for _, d := range f {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, nil
}

func newTestAuthenticator(t *testing.T, pki bool) (*Authenticator, Config) {
	t.Helper()
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	cfg := Config{JWTSecret: "test-secret", AccessTokenTTL: time.Minute, PKIClientAuth: pki}
	domains := fakeDomains{
		"d-cz": {ID: "d-cz", Name: "cz.cesnet", PasswordHash: hash},
	}
	return NewAuthenticator(cfg, domains), cfg
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	assert.True(t, CheckPassword("pw", hash))
	assert.False(t, CheckPassword("other", hash))
	assert.False(t, CheckPassword("pw", ""))
}

func TestLoginAndAuthenticate(t *testing.T) {
	a, _ := newTestAuthenticator(t, false)

	req := httptest.NewRequest(http.MethodGet, "/domain/login", nil)
	req.SetBasicAuth("cz.cesnet", "secret")
	token, d, err := a.Login(req)
	require.NoError(t, err)
	assert.Equal(t, "d-cz", d.ID)
	require.NotEmpty(t, token)

	tests := []struct {
		name   string
		header string
	}{
		{"bearer", "Bearer " + token},
		{"basic token", "Basic " + base64.StdEncoding.EncodeToString([]byte(token+":"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/domain/reservation", nil)
			r.Header.Set("Authorization", tt.header)
			got, err := a.Authenticate(r)
			require.NoError(t, err)
			assert.Equal(t, "cz.cesnet", got.Name)
		})
	}
}

func TestLogin_Failures(t *testing.T) {
	a, _ := newTestAuthenticator(t, false)

	tests := []struct {
		name     string
		user, pw string
		setAuth  bool
	}{
		{"missing credentials", "", "", false},
		{"wrong password", "cz.cesnet", "nope", true},
		{"unknown domain", "sk.sanet", "secret", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/domain/login", nil)
			if tt.setAuth {
				r.SetBasicAuth(tt.user, tt.pw)
			}
			_, _, err := a.Login(r)
			assert.ErrorIs(t, err, ErrNotAuthorized)
		})
	}
}

func TestAuthenticate_Failures(t *testing.T) {
	a, cfg := newTestAuthenticator(t, false)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "d-cz",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Type: tokenTypeAccess,
	}).SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)

	wrongType, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "d-cz"},
		Type:             "refresh",
	}).SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)

	unknown, err := GenerateAccessToken(cfg, &model.Domain{ID: "d-gone", Name: "gone"})
	require.NoError(t, err)

	otherKey, err := GenerateAccessToken(Config{JWTSecret: "other"}, &model.Domain{ID: "d-cz"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"garbage", "Token abc"},
		{"expired", "Bearer " + expired},
		{"wrong type", "Bearer " + wrongType},
		{"unknown domain", "Bearer " + unknown},
		{"wrong signature", "Bearer " + otherKey},
		{"bad basic", "Basic !!!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/domain/reservation", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			_, err := a.Authenticate(r)
			assert.ErrorIs(t, err, ErrNotAuthorized)
		})
	}
}

func withPeerCertificate(r *http.Request, cn string) {
	r.TLS = &tls.ConnectionState{
		PeerCertificates: []*x509.Certificate{{Subject: pkix.Name{CommonName: cn}}},
	}
}

func TestAuthenticate_ClientCertificate(t *testing.T) {
	a, _ := newTestAuthenticator(t, true)

	r := httptest.NewRequest(http.MethodGet, "/domain/reservation", nil)
	withPeerCertificate(r, "cz.cesnet")
	d, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "d-cz", d.ID)

	token, _, err := a.Login(r)
	require.NoError(t, err, "证书可以代替密码登录")
	assert.NotEmpty(t, token)

	r = httptest.NewRequest(http.MethodGet, "/domain/reservation", nil)
	withPeerCertificate(r, "intruder")
	_, err = a.Authenticate(r)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	// 未启用 PKI 时忽略证书
	plain, _ := newTestAuthenticator(t, false)
	r = httptest.NewRequest(http.MethodGet, "/domain/reservation", nil)
	withPeerCertificate(r, "cz.cesnet")
	_, err = plain.Authenticate(r)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestMiddleware(t *testing.T) {
	a, cfg := newTestAuthenticator(t, false)
	token, err := GenerateAccessToken(cfg, &model.Domain{ID: "d-cz", Name: "cz.cesnet"})
	require.NoError(t, err)

	var seen *model.Domain
	h := Middleware(a, func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetDomain(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "d-cz", seen.ID)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
