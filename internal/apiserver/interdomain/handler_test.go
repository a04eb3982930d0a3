package interdomain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shongo-controller/internal/apiserver/auth"
	"shongo-controller/internal/controller/availability"
	"shongo-controller/internal/controller/booking"
	"shongo-controller/internal/shared/model"
	"shongo-controller/internal/shared/storage"
	"shongo-controller/internal/shared/storage/driver/sqlite"
	"shongo-controller/internal/shared/storage/repository"
	"shongo-controller/pkg/logging"
)

type testEnv struct {
	server *httptest.Server
	store  storage.PersistentStore
	svc    *booking.Service
	cfg    auth.Config
	slot   model.Interval
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	dialect := sqlite.NewDialect()
	require.NoError(t, dialect.AutoMigrate(db))
	store := repository.NewStore(db, dialect)
	t.Cleanup(func() { store.Close() })

	svc, err := booking.NewService(booking.Options{
		Store:    store,
		Database: availability.NewDatabase(availability.Options{Logger: logging.Discard()}),
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)
	require.NoError(t, svc.Rebuild(ctx))

	require.NoError(t, svc.CreateResource(ctx, &model.Resource{
		ID: "room", Name: "Camera room", Allocatable: true,
		Technologies: model.Technologies{model.TechnologyH323},
	}))
	require.NoError(t, svc.CreateResource(ctx, &model.Resource{
		ID: "mcu", Name: "MCU", Allocatable: true, Address: "mcu.example.org",
		Technologies: model.Technologies{model.TechnologyH323, model.TechnologySIP},
		Capabilities: []model.Capability{{Type: model.CapabilityVirtualRooms, PortCount: 10}},
	}))
	require.NoError(t, svc.CreateResource(ctx, &model.Resource{
		ID: "private", Name: "Private", Allocatable: true,
		Technologies: model.Technologies{model.TechnologySIP},
	}))

	hash, err := auth.HashPassword("secret")
	require.NoError(t, err)
	for _, d := range []*model.Domain{
		{ID: "d-cz", Name: "cz.cesnet", PasswordHash: hash, Allocatable: true},
		{ID: "d-sk", Name: "sk.sanet", PasswordHash: hash, Allocatable: true},
	} {
		require.NoError(t, store.CreateDomain(ctx, d))
	}
	require.NoError(t, store.UpsertDomainResource(ctx, &model.DomainResource{
		DomainID: "d-cz", ResourceID: "room", Type: model.DomainCapabilityResource, Price: 1,
	}))
	require.NoError(t, store.UpsertDomainResource(ctx, &model.DomainResource{
		DomainID: "d-cz", ResourceID: "mcu", Type: model.DomainCapabilityVirtualRoom, LicenseCount: 10,
	}))
	require.NoError(t, store.UpsertDomainResource(ctx, &model.DomainResource{
		DomainID: "d-sk", ResourceID: "room", Type: model.DomainCapabilityResource,
	}))

	cfg := auth.Config{JWTSecret: "test-secret", AccessTokenTTL: time.Minute}
	h := NewHandler(auth.NewAuthenticator(cfg, store), svc, store, logging.Discard())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	start := time.Now().UTC().Truncate(time.Hour).Add(48 * time.Hour)
	return &testEnv{
		server: server,
		store:  store,
		svc:    svc,
		cfg:    cfg,
		slot:   model.NewInterval(start, start.Add(2*time.Hour)),
	}
}

func (e *testEnv) login(t *testing.T, domain string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.server.URL+"/domain/login", nil)
	require.NoError(t, err)
	req.SetBasicAuth(domain, "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login model.DomainLogin
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	require.NotEmpty(t, login.AccessToken)
	return login.AccessToken
}

func (e *testEnv) do(t *testing.T, token, method, path string, query url.Values, body interface{}, out interface{}) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	target := e.server.URL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestStatusAndLogin(t *testing.T) {
	env := newTestEnv(t)

	var status model.DomainStatusResponse
	assert.Equal(t, http.StatusOK, env.do(t, "", http.MethodGet, "/domain/status", nil, nil, &status))
	assert.Equal(t, model.DomainStatusAvailable, status.Status)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/domain/login", nil)
	require.NoError(t, err)
	req.SetBasicAuth("cz.cesnet", "wrong")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnauthorized(t *testing.T) {
	env := newTestEnv(t)

	var body model.Status
	code := env.do(t, "", http.MethodGet, "/domain/reservation", url.Values{"reservationRequestId": {"x"}}, nil, &body)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, model.StatusUnauthorized, body.Code)
	assert.Equal(t, unauthorizedMessage, body.Message)

	code = env.do(t, "not-a-token", http.MethodPost, "/domain/resource/list", nil, []model.CapabilitySpecificationRequest{}, &body)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func signedToken(t *testing.T, secret string, expiresAt time.Time) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "d-cz",
			IssuedAt:  jwt.NewNumericDate(expiresAt.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Domain: "cz.cesnet",
		Type:   "access",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestUnauthorizedAllocate(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		token string
	}{
		{"没有令牌", ""},
		{"无效令牌", "bogus"},
		{"其他密钥签发", signedToken(t, "other-secret", time.Now().Add(time.Hour))},
		{"令牌已过期", signedToken(t, env.cfg.JWTSecret, time.Now().Add(-time.Minute))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body model.Status
			code := env.do(t, tt.token, http.MethodGet, "/domain/resource/allocate", url.Values{
				"slot":                 {env.slot.String()},
				"resourceId":           {"room"},
				"reservationRequestId": {"req-unauth"},
			}, nil, &body)
			assert.Equal(t, http.StatusUnauthorized, code)
			assert.Equal(t, model.StatusUnauthorized, body.Code)
			assert.Equal(t, unauthorizedMessage, body.Message)
		})
	}

	r, err := env.svc.GetByRequest(context.Background(), "req-unauth")
	assert.NoError(t, err)
	assert.Nil(t, r, "未认证的请求不产生预约")
	assert.Empty(t, env.svc.Database().GetAllocatedResources("room", env.slot))
}

func TestListCapabilities(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "cz.cesnet")

	var caps []model.DomainCapability
	code := env.do(t, token, http.MethodPost, "/domain/resource/list", nil, []model.CapabilitySpecificationRequest{
		{CapabilityType: model.DomainCapabilityResource},
		{CapabilityType: model.DomainCapabilityVirtualRoom, TechnologyVariants: []model.Technologies{{model.TechnologySIP}}},
	}, &caps)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, caps, 2)

	assert.Equal(t, "room", caps[0].ID)
	assert.Equal(t, model.DomainCapabilityResource, caps[0].Type)
	assert.Equal(t, 1, caps[0].Price)
	assert.Empty(t, caps[1].ID, "会议室能力不暴露设备 ID")
	assert.Equal(t, 10, caps[1].LicenseCount)

	// 技术不满足时过滤
	code = env.do(t, token, http.MethodPost, "/domain/resource/list", nil, []model.CapabilitySpecificationRequest{
		{CapabilityType: model.DomainCapabilityResource, TechnologyVariants: []model.Technologies{{model.TechnologySIP}}},
	}, &caps)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, caps)

	var status model.Status
	code = env.do(t, token, http.MethodPost, "/domain/resource/list", nil, []model.CapabilitySpecificationRequest{
		{CapabilityType: "PHONE"},
	}, &status)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, model.StatusBadRequest, status.Code)
}

func TestAllocateLifecycle(t *testing.T) {
	env := newTestEnv(t)
	cz := env.login(t, "cz.cesnet")
	sk := env.login(t, "sk.sanet")

	var fr model.ForeignReservation
	code := env.do(t, cz, http.MethodGet, "/domain/resource/allocate", url.Values{
		"slot":                 {env.slot.String()},
		"resourceId":           {"room"},
		"userId":               {"42"},
		"reservationRequestId": {"req-1"},
	}, nil, &fr)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.ForeignReservationOK, fr.Status)
	assert.Equal(t, "req-1", fr.ForeignReservationRequestID)
	assert.NotEmpty(t, fr.ForeignReservationID)

	r, err := env.svc.GetByRequest(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "d-cz:42", r.CreatedBy)

	// 时间段可用性反映已有预约
	var caps []model.DomainCapability
	env.do(t, cz, http.MethodPost, "/domain/resource/list", url.Values{"slot": {env.slot.String()}},
		[]model.CapabilitySpecificationRequest{{CapabilityType: model.DomainCapabilityResource}}, &caps)
	require.Len(t, caps, 1)
	assert.False(t, caps[0].Available)

	// 其他域占用同一资源：冲突
	var status model.Status
	code = env.do(t, sk, http.MethodGet, "/domain/resource/allocate", url.Values{
		"slot":                 {env.slot.String()},
		"resourceId":           {"room"},
		"reservationRequestId": {"req-sk"},
	}, nil, &status)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, model.StatusConflict, status.Code)

	// 失败的请求可以查询为 FAILED
	code = env.do(t, sk, http.MethodGet, "/domain/reservation", url.Values{"reservationRequestId": {"req-sk"}}, nil, &fr)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.ForeignReservationFailed, fr.Status)

	// 其他域的预约不可见
	code = env.do(t, sk, http.MethodGet, "/domain/reservation", url.Values{"reservationRequestId": {"req-1"}}, nil, &status)
	assert.Equal(t, http.StatusForbidden, code)
	code = env.do(t, sk, http.MethodGet, "/domain/reservation/delete", url.Values{"reservationRequestId": {"req-1"}}, nil, &status)
	assert.Equal(t, http.StatusForbidden, code)

	// 预约列表：sk 只能看到时间段
	var list []model.ForeignReservation
	code = env.do(t, sk, http.MethodGet, "/domain/resource/reservation/list", url.Values{"resourceId": {"room"}}, nil, &list)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].ForeignReservationRequestID)
	assert.True(t, list[0].Slot.Start.Equal(env.slot.Start))

	code = env.do(t, cz, http.MethodGet, "/domain/resource/reservation/list", nil, nil, &list)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)
	assert.Equal(t, "req-1", list[0].ForeignReservationRequestID)

	code = env.do(t, cz, http.MethodGet, "/domain/resource/reservation/list", url.Values{"resourceId": {"private"}}, nil, &status)
	assert.Equal(t, http.StatusForbidden, code)

	// 删除，重复删除与未知请求都成功
	for _, id := range []string{"req-1", "req-1", "unknown"} {
		code = env.do(t, cz, http.MethodGet, "/domain/reservation/delete", url.Values{"reservationRequestId": {id}}, nil, &status)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, model.StatusOK, status.Code)
	}
	assert.True(t, env.svc.IsResourceAvailable("room", env.slot))
}

func TestAllocate_Forbidden(t *testing.T) {
	env := newTestEnv(t)
	cz := env.login(t, "cz.cesnet")

	tests := []struct {
		name   string
		query  url.Values
		status int
	}{
		{"未开放的资源", url.Values{"slot": {env.slot.String()}, "resourceId": {"private"}}, http.StatusForbidden},
		{"会议室能力不能按资源预约", url.Values{"slot": {env.slot.String()}, "resourceId": {"mcu"}}, http.StatusForbidden},
		{"缺少 slot", url.Values{"resourceId": {"room"}}, http.StatusBadRequest},
		{"非法 slot", url.Values{"slot": {"tomorrow"}, "resourceId": {"room"}}, http.StatusBadRequest},
		{"缺少资源", url.Values{"slot": {env.slot.String()}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var status model.Status
			assert.Equal(t, tt.status, env.do(t, cz, http.MethodGet, "/domain/resource/allocate", tt.query, nil, &status))
		})
	}
}

func TestAllocate_ResourceMissingFromAvailability(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 只写入存储，不进入可用性数据库
	require.NoError(t, env.store.CreateResource(ctx, &model.Resource{ID: "ghost", Name: "Ghost", Allocatable: true}))
	require.NoError(t, env.store.UpsertDomainResource(ctx, &model.DomainResource{
		DomainID: "d-cz", ResourceID: "ghost", Type: model.DomainCapabilityResource,
	}))

	var status model.Status
	code := env.do(t, env.login(t, "cz.cesnet"), http.MethodGet, "/domain/resource/allocate", url.Values{
		"slot":                 {env.slot.String()},
		"resourceId":           {"ghost"},
		"reservationRequestId": {"req-ghost"},
	}, nil, &status)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, model.StatusError, status.Code)
	assert.Equal(t, "internal error", status.Message)
}

func TestStatusFor(t *testing.T) {
	code, body := statusFor(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal error", body.Message, "内部错误细节不返回给对端")

	code, _ = statusFor(&NotAuthorizedError{Err: assert.AnError})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = statusFor(booking.ErrForeignRequest)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = statusFor(fmt.Errorf("allocate: %w", availability.ErrResourceNotMaintained))
	assert.Equal(t, http.StatusInternalServerError, code, "数据不一致不是可重试的冲突")
	assert.Equal(t, model.StatusError, body.Code)

	code, body = statusFor(fmt.Errorf("allocate: %w", availability.ErrNotEnoughPorts))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, model.StatusConflict, body.Code)
}
