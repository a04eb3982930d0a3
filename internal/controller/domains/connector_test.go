package domains

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shongo-controller/internal/shared/cache"
	"shongo-controller/internal/shared/model"
	"shongo-controller/pkg/logging"
)

type fakeDomains []*model.Domain

func (f fakeDomains) GetDomain(_ context.Context, id string) (*model.Domain, error) {
	for _, d := range f {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, nil
}

func (f fakeDomains) ListDomains(context.Context) ([]*model.Domain, error) {
	return f, nil
}

// fakePeer 模拟对端控制器
type fakePeer struct {
	logins    atomic.Int32
	listCalls atomic.Int32
	expired   atomic.Bool // 下一次请求返回 401
}

func (p *fakePeer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer token-ok" || p.expired.CompareAndSwap(true, false) {
				writeJSON(w, http.StatusUnauthorized, model.Status{Code: model.StatusUnauthorized})
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("GET /domain/login", func(w http.ResponseWriter, r *http.Request) {
		p.logins.Add(1)
		user, pw, ok := r.BasicAuth()
		if !ok || user != "local" || pw != "secret" {
			writeJSON(w, http.StatusUnauthorized, model.Status{Code: model.StatusUnauthorized})
			return
		}
		writeJSON(w, http.StatusOK, model.DomainLogin{AccessToken: "token-ok"})
	})
	mux.HandleFunc("GET /domain/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.DomainStatusResponse{Status: model.DomainStatusAvailable})
	})
	mux.HandleFunc("POST /domain/resource/list", authed(func(w http.ResponseWriter, r *http.Request) {
		p.listCalls.Add(1)
		var specs []model.CapabilitySpecificationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&specs))
		writeJSON(w, http.StatusOK, []model.DomainCapability{{ID: "room", Type: model.DomainCapabilityResource, Available: true}})
	}))
	mux.HandleFunc("GET /domain/resource/allocate", authed(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("resourceId") == "busy" {
			writeJSON(w, http.StatusConflict, model.Status{Code: model.StatusConflict, Message: "resource is not available"})
			return
		}
		slot, err := model.ParseInterval(q.Get("slot"))
		require.NoError(t, err)
		writeJSON(w, http.StatusOK, model.ForeignReservation{
			ForeignReservationRequestID: q.Get("reservationRequestId"),
			ForeignReservationID:        "res-1",
			Slot:                        &slot,
			Status:                      model.ForeignReservationOK,
			ResourceID:                  q.Get("resourceId"),
		})
	}))
	mux.HandleFunc("GET /domain/reservation", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, model.Status{Code: model.StatusForbidden, Message: "not yours"})
	}))
	mux.HandleFunc("GET /domain/reservation/delete", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.Status{Code: model.StatusOK})
	}))
	mux.HandleFunc("GET /domain/resource/reservation/list", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []model.ForeignReservation{{Status: model.ForeignReservationOK, ResourceID: "room"}})
	}))
	return mux
}

type fixture struct {
	peer      *fakePeer
	connector *Connector
	domains   fakeDomains
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	peer := &fakePeer{}
	server := httptest.NewServer(peer.handler(t))
	t.Cleanup(server.Close)

	domains := fakeDomains{
		{ID: "d-local", Name: "local", URL: "http://localhost:1"},
		{ID: "d-peer", Name: "peer", URL: server.URL, Allocatable: true},
		{ID: "d-down", Name: "down", URL: "http://127.0.0.1:1", Allocatable: true},
		{ID: "d-nourl", Name: "nourl"},
	}
	c, err := NewConnector(Options{
		Domains:     domains,
		LocalDomain: "local",
		Password:    "secret",
		Timeout:     2 * time.Second,
		Logger:      logging.Discard(),
	})
	require.NoError(t, err)
	return &fixture{peer: peer, connector: c, domains: domains}
}

func TestConnector_DomainStatuses(t *testing.T) {
	f := newFixture(t)

	statuses, err := f.connector.DomainStatuses(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2, "本域和没有 URL 的域不查询")

	byName := map[string]model.DomainStatus{}
	for _, d := range statuses {
		byName[d.Name] = d.Status
	}
	assert.Equal(t, model.DomainStatusAvailable, byName["peer"])
	assert.Equal(t, model.DomainStatusNotAvailable, byName["down"])
	assert.Empty(t, f.domains[1].Status, "不修改原始域对象")
}

func TestConnector_LoginCachedAndRenewed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.connector.ListReservations(ctx, "d-peer", "", nil)
	require.NoError(t, err)
	_, err = f.connector.ListReservations(ctx, "d-peer", "room", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.peer.logins.Load(), "令牌被缓存")

	f.peer.expired.Store(true)
	list, err := f.connector.ListReservations(ctx, "d-peer", "", nil)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, int32(2), f.peer.logins.Load(), "401 后重新登录一次")
}

func TestConnector_LoginRejected(t *testing.T) {
	f := newFixture(t)
	f.connector.password = "wrong"

	_, err := f.connector.ListReservations(context.Background(), "d-peer", "", nil)
	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusUnauthorized, ce.Status)
	assert.Equal(t, "peer", ce.Domain)
}

func TestConnector_ListForeignCapabilities(t *testing.T) {
	f := newFixture(t)

	result, err := f.connector.ListForeignCapabilities(context.Background(),
		[]model.CapabilitySpecificationRequest{{CapabilityType: model.DomainCapabilityResource}}, nil)
	require.NoError(t, err)
	require.Len(t, result, 1, "不可达的域被忽略")
	require.Len(t, result["d-peer"], 1)
	assert.Equal(t, "room", result["d-peer"][0].ID)
}

func TestConnector_ReservationLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	slot := model.NewInterval(start, start.Add(time.Hour))

	fr, err := f.connector.AllocateResource(ctx, "d-peer", AllocateRequest{
		Slot: slot, ResourceID: "room", UserID: "7", ReservationRequestID: "req-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", fr.ForeignReservationRequestID)
	assert.Equal(t, "res-1", fr.ForeignReservationID)
	assert.True(t, fr.Slot.Start.Equal(start))

	_, err = f.connector.AllocateResource(ctx, "d-peer", AllocateRequest{Slot: slot, ResourceID: "busy"})
	assert.True(t, IsConflict(err))

	_, err = f.connector.GetReservationByRequest(ctx, "d-peer", "other")
	assert.True(t, IsForbidden(err))

	require.NoError(t, f.connector.DeallocateReservation(ctx, "d-peer", "req-1"))

	_, err = f.connector.AllocateResource(ctx, "d-local", AllocateRequest{Slot: slot, ResourceID: "room"})
	assert.ErrorIs(t, err, ErrUnknownDomain)
	_, err = f.connector.GetReservationByRequest(ctx, "d-missing", "x")
	assert.ErrorIs(t, err, ErrUnknownDomain)

	_, err = f.connector.ListReservations(ctx, "d-down", "", nil)
	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Zero(t, ce.Status)
	assert.Error(t, ce.Err)
}

func TestCachedConnector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mem := cache.NewMemoryCache()
	cc := NewCachedConnector(f.connector, mem, time.Hour)

	specs := []model.CapabilitySpecificationRequest{{CapabilityType: model.DomainCapabilityResource}}

	// 缓存未命中：实时查询并写入缓存
	result, err := cc.ListForeignCapabilities(ctx, specs, nil)
	require.NoError(t, err)
	require.Len(t, result["d-peer"], 1)
	calls := f.peer.listCalls.Load()

	result, err = cc.ListForeignCapabilities(ctx, specs, nil)
	require.NoError(t, err)
	require.Len(t, result["d-peer"], 1)
	assert.Equal(t, calls, f.peer.listCalls.Load(), "命中缓存不访问对端")

	// 带条件的查询不走缓存
	start := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	slot := model.NewInterval(start, start.Add(time.Hour))
	_, err = cc.ListForeignCapabilities(ctx, specs, &slot)
	require.NoError(t, err)
	assert.Equal(t, calls+1, f.peer.listCalls.Load())

	require.NoError(t, cc.Refresh(ctx))
	list, ok, err := mem.GetDomainReservations(ctx, "d-peer")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, list, 1)

	cached, err := cc.CachedReservations(ctx, "d-peer")
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	require.NoError(t, cc.Forget(ctx, "d-peer"))
	_, ok, err = mem.GetDomainCapabilities(ctx, "d-peer")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCachedConnector_StartStops(t *testing.T) {
	f := newFixture(t)
	cc := NewCachedConnector(f.connector, cache.NewMemoryCache(), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cc.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return f.peer.listCalls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestPlainResourceQuery(t *testing.T) {
	one := 1
	assert.True(t, plainResourceQuery([]model.CapabilitySpecificationRequest{{CapabilityType: model.DomainCapabilityResource}}))
	assert.False(t, plainResourceQuery(nil))
	assert.False(t, plainResourceQuery([]model.CapabilitySpecificationRequest{{CapabilityType: model.DomainCapabilityVirtualRoom}}))
	assert.False(t, plainResourceQuery([]model.CapabilitySpecificationRequest{{CapabilityType: model.DomainCapabilityResource, LicenseCount: &one}}))
}
