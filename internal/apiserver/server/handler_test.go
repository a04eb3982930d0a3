package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shongo-controller/internal/apiserver/auth"
	"shongo-controller/internal/apiserver/interdomain"
	"shongo-controller/internal/controller/availability"
	"shongo-controller/internal/controller/booking"
	"shongo-controller/internal/shared/eventbus"
	"shongo-controller/internal/shared/model"
	"shongo-controller/internal/shared/objstore"
	"shongo-controller/internal/shared/storage"
	"shongo-controller/internal/shared/storage/driver/sqlite"
	"shongo-controller/internal/shared/storage/repository"
	"shongo-controller/pkg/logging"
)

type fakeConnector struct {
	forgotten []string
}

func (f *fakeConnector) DomainStatuses(context.Context) ([]*model.Domain, error) {
	return []*model.Domain{{ID: "d-peer", Name: "peer", Status: model.DomainStatusAvailable}}, nil
}

func (f *fakeConnector) ListForeignCapabilities(_ context.Context, _ []model.CapabilitySpecificationRequest, _ *model.Interval) (map[string][]*model.DomainCapability, error) {
	return map[string][]*model.DomainCapability{"d-peer": {{ID: "room", Type: model.DomainCapabilityResource}}}, nil
}

func (f *fakeConnector) Forget(_ context.Context, id string) error {
	f.forgotten = append(f.forgotten, id)
	return nil
}

type testServer struct {
	*httptest.Server
	handler   *Handler
	store     storage.PersistentStore
	bus       *eventbus.MemoryEventBus
	objects   *objstore.MemoryObjectStore
	connector *fakeConnector
	slot      model.Interval
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	dialect := sqlite.NewDialect()
	require.NoError(t, dialect.AutoMigrate(db))
	store := repository.NewStore(db, dialect)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	metrics := NewMetrics("test", reg)
	bus := eventbus.NewMemoryEventBus()
	svc, err := booking.NewService(booking.Options{
		Store:    store,
		Database: availability.NewDatabase(availability.Options{Logger: logging.Discard()}),
		EventBus: bus,
		Recorder: metrics,
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)
	require.NoError(t, svc.Rebuild(context.Background()))

	objects := objstore.NewMemoryObjectStore()
	connector := &fakeConnector{}
	authCfg := auth.Config{JWTSecret: "test-secret", AccessTokenTTL: time.Minute}
	h := NewHandler(Options{
		Booking:      svc,
		Domains:      store,
		Connector:    connector,
		Certificates: objstore.NewCertificateStore(objects),
		Interdomain:  interdomain.NewHandler(auth.NewAuthenticator(authCfg, store), svc, store, logging.Discard()),
		EventBus:     bus,
		Metrics:      metrics,
		Logger:       logging.Discard(),
	})
	server := httptest.NewServer(h.Router())
	t.Cleanup(server.Close)

	start := time.Now().UTC().Truncate(time.Hour).Add(24 * time.Hour)
	return &testServer{
		Server:    server,
		handler:   h,
		store:     store,
		bus:       bus,
		objects:   objects,
		connector: connector,
		slot:      model.NewInterval(start, start.Add(time.Hour)),
	}
}

func (s *testServer) request(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func mcu(id string, ports int) *model.Resource {
	return &model.Resource{
		ID:           id,
		Name:         id,
		Allocatable:  true,
		Address:      id + ".example.org",
		Technologies: model.Technologies{model.TechnologyH323, model.TechnologySIP},
		Capabilities: []model.Capability{{Type: model.CapabilityVirtualRooms, PortCount: ports}},
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	var health map[string]interface{}
	assert.Equal(t, http.StatusOK, s.request(t, http.MethodGet, "/health", nil, &health))
	assert.Equal(t, "ok", health["status"])

	resp, err := http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "test_http_requests_total")
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, s.URL+"/api/v1/resources", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	h := &Handler{corsOrigins: []string{"https://admin.example.org"}}
	wrapped := h.corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://admin.example.org")
	wrapped.ServeHTTP(rec, r)
	assert.Equal(t, "https://admin.example.org", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	r.Header.Set("Origin", "https://evil.example.org")
	wrapped.ServeHTTP(rec, r)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestResources(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusCreated, s.request(t, http.MethodPost, "/api/v1/resources", mcu("mcu", 10), nil))
	assert.Equal(t, http.StatusConflict, s.request(t, http.MethodPost, "/api/v1/resources", mcu("mcu", 10), nil))
	assert.Equal(t, http.StatusBadRequest, s.request(t, http.MethodPost, "/api/v1/resources", &model.Resource{ID: "x"}, nil))

	var res model.Resource
	assert.Equal(t, http.StatusOK, s.request(t, http.MethodGet, "/api/v1/resources/mcu", nil, &res))
	assert.Equal(t, 10, res.PortCount())
	assert.Equal(t, http.StatusNotFound, s.request(t, http.MethodGet, "/api/v1/resources/none", nil, nil))

	updated := mcu("ignored", 20)
	assert.Equal(t, http.StatusOK, s.request(t, http.MethodPut, "/api/v1/resources/mcu", updated, &res))
	assert.Equal(t, "mcu", res.ID)

	var list struct {
		Resources []*model.Resource `json:"resources"`
		Count     int               `json:"count"`
	}
	assert.Equal(t, http.StatusOK, s.request(t, http.MethodGet, "/api/v1/resources", nil, &list))
	assert.Equal(t, 1, list.Count)

	var rooms struct {
		Rooms []availability.AvailableVirtualRoom `json:"rooms"`
	}
	path := "/api/v1/virtual-rooms/available?ports=5&technologies=h323&slot=" + s.slot.String()
	assert.Equal(t, http.StatusOK, s.request(t, http.MethodGet, path, nil, &rooms))
	require.Len(t, rooms.Rooms, 1)
	assert.Equal(t, 20, rooms.Rooms[0].AvailablePorts)

	assert.Equal(t, http.StatusBadRequest, s.request(t, http.MethodGet, "/api/v1/virtual-rooms/available", nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.request(t, http.MethodGet, "/api/v1/virtual-rooms/available?technologies=fax&slot="+s.slot.String(), nil, nil))

	var avail map[string]interface{}
	assert.Equal(t, http.StatusOK, s.request(t, http.MethodGet, "/api/v1/resources/mcu/availability?slot="+s.slot.String(), nil, &avail))
	assert.Equal(t, true, avail["available"])

	var stats availability.Stats
	assert.Equal(t, http.StatusOK, s.request(t, http.MethodGet, "/api/v1/stats", nil, &stats))
	assert.Equal(t, 1, stats.VirtualRooms)

	assert.Equal(t, http.StatusNoContent, s.request(t, http.MethodDelete, "/api/v1/resources/mcu", nil, nil))
	assert.Equal(t, http.StatusNotFound, s.request(t, http.MethodDelete, "/api/v1/resources/mcu", nil, nil))
}

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

func TestDomains(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	var d model.Domain
	code := s.request(t, http.MethodPost, "/api/v1/domains", DomainRequest{
		ID: "d-cz", Name: "cz.cesnet", URL: "https://shongo.cesnet.cz", Allocatable: true, Password: "secret",
	}, &d)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "d-cz", d.ID)

	stored, err := s.store.GetDomain(ctx, "d-cz")
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword("secret", stored.PasswordHash), "只保存密码哈希")

	assert.Equal(t, http.StatusConflict, s.request(t, http.MethodPost, "/api/v1/domains", DomainRequest{ID: "d-2", Name: "cz.cesnet"}, nil))
	assert.Equal(t, http.StatusBadRequest, s.request(t, http.MethodPost, "/api/v1/domains", DomainRequest{}, nil))

	// 证书
	assert.Equal(t, http.StatusBadRequest, s.request(t, http.MethodPut, "/api/v1/domains/d-cz/certificate", []byte("not a cert"), nil))
	code = s.request(t, http.MethodPut, "/api/v1/domains/d-cz/certificate", selfSignedPEM(t, "cz.cesnet"), &d)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, objstore.CertificateKey("cz.cesnet"), d.CertificateKey)
	data, err := s.objects.Get(ctx, d.CertificateKey)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	// 开放资源
	require.Equal(t, http.StatusCreated, s.request(t, http.MethodPost, "/api/v1/resources", mcu("mcu", 10), nil))
	var dr model.DomainResource
	code = s.request(t, http.MethodPut, "/api/v1/domains/d-cz/resources/mcu", model.DomainResource{Type: model.DomainCapabilityVirtualRoom, LicenseCount: 5}, &dr)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "mcu", dr.ResourceID)
	assert.Equal(t, http.StatusNotFound, s.request(t, http.MethodPut, "/api/v1/domains/d-cz/resources/none", model.DomainResource{}, nil))
	assert.Equal(t, http.StatusBadRequest, s.request(t, http.MethodPut, "/api/v1/domains/d-cz/resources/mcu", model.DomainResource{Type: "PHONE"}, nil))

	var drs struct {
		Count int `json:"count"`
	}
	assert.Equal(t, http.StatusOK, s.request(t, http.MethodGet, "/api/v1/domains/d-cz/resources", nil, &drs))
	assert.Equal(t, 1, drs.Count)

	// 跨域协议路由已挂载
	req, err := http.NewRequest(http.MethodGet, s.URL+"/domain/login", nil)
	require.NoError(t, err)
	req.SetBasicAuth("cz.cesnet", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// 更新与删除
	code = s.request(t, http.MethodPut, "/api/v1/domains/d-cz", DomainRequest{URL: "https://new.cesnet.cz", Allocatable: false}, &d)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cz.cesnet", d.Name)
	assert.Equal(t, "https://new.cesnet.cz", d.URL)

	assert.Equal(t, http.StatusNoContent, s.request(t, http.MethodDelete, "/api/v1/domains/d-cz/resources/mcu", nil, nil))
	assert.Equal(t, http.StatusNoContent, s.request(t, http.MethodDelete, "/api/v1/domains/d-cz", nil, nil))
	assert.Equal(t, http.StatusNotFound, s.request(t, http.MethodGet, "/api/v1/domains/d-cz", nil, nil))
	data, err = s.objects.Get(ctx, objstore.CertificateKey("cz.cesnet"))
	require.NoError(t, err)
	assert.Nil(t, data, "删除域时删除证书")
	assert.Equal(t, []string{"d-cz", "d-cz"}, s.connector.forgotten)
}

func TestForeignDomains(t *testing.T) {
	s := newTestServer(t)

	var statuses struct {
		Domains []*model.Domain `json:"domains"`
	}
	assert.Equal(t, http.StatusOK, s.request(t, http.MethodGet, "/api/v1/domains/statuses", nil, &statuses))
	require.Len(t, statuses.Domains, 1)
	assert.Equal(t, model.DomainStatusAvailable, statuses.Domains[0].Status)

	var caps struct {
		Capabilities map[string][]*model.DomainCapability `json:"capabilities"`
	}
	code := s.request(t, http.MethodPost, "/api/v1/domains/capabilities",
		[]model.CapabilitySpecificationRequest{{CapabilityType: model.DomainCapabilityResource}}, &caps)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, caps.Capabilities["d-peer"], 1)
}

func TestReservations(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.request(t, http.MethodPost, "/api/v1/resources", mcu("mcu", 10), nil))

	var r model.Reservation
	code := s.request(t, http.MethodPost, "/api/v1/reservations/room", booking.RoomRequest{
		RequestID:    "req-1",
		Slot:         s.slot,
		Participants: []booking.Participant{{Count: 4, Technologies: model.Technologies{model.TechnologyH323}}},
	}, &r)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "mcu", r.ResourceID)
	assert.Equal(t, 4, r.PortCount)

	code = s.request(t, http.MethodPost, "/api/v1/reservations/room", booking.RoomRequest{
		Slot:         s.slot,
		Participants: []booking.Participant{{Count: 7, Technologies: model.Technologies{model.TechnologyH323}}},
	}, nil)
	assert.Equal(t, http.StatusConflict, code, "端口不足")

	code = s.request(t, http.MethodPost, "/api/v1/reservations/room", booking.RoomRequest{
		Slot:         s.slot,
		Participants: []booking.Participant{{Count: 2, Technologies: model.Technologies{model.TechnologyAdobeConnect}}},
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code, "没有兼容的会议室")

	assert.Equal(t, http.StatusBadRequest, s.request(t, http.MethodPost, "/api/v1/reservations/room", booking.RoomRequest{}, nil))

	var list struct {
		Reservations []*model.Reservation `json:"reservations"`
		Count        int                  `json:"count"`
	}
	assert.Equal(t, http.StatusOK, s.request(t, http.MethodGet, "/api/v1/reservations?status=allocated&resource_id=mcu", nil, &list))
	assert.Equal(t, 1, list.Count)

	var got model.Reservation
	assert.Equal(t, http.StatusOK, s.request(t, http.MethodGet, "/api/v1/reservations/"+r.ID, nil, &got))
	assert.Equal(t, "req-1", got.RequestID)

	assert.Equal(t, http.StatusNoContent, s.request(t, http.MethodDelete, "/api/v1/reservations/"+r.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.request(t, http.MethodDelete, "/api/v1/reservations/unknown", nil, nil))

	// 资源预约
	code = s.request(t, http.MethodPost, "/api/v1/reservations/resource", booking.ResourceRequest{Slot: s.slot, ResourceID: "mcu"}, &r)
	require.Equal(t, http.StatusCreated, code)
	code = s.request(t, http.MethodPost, "/api/v1/reservations/resource", booking.ResourceRequest{Slot: s.slot, ResourceID: "mcu"}, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func dialEvents(t *testing.T, s *testServer, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/reservations" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestEventGateway(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	conn := dialEvents(t, s, "?resource_id=mcu")
	assert.Eventually(t, func() bool { return s.handler.eventGateway.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.bus.PublishReservationEvent(ctx, &eventbus.ReservationEvent{Type: eventbus.EventReservationAllocated, ResourceID: "other"}))
	require.NoError(t, s.bus.PublishReservationEvent(ctx, &eventbus.ReservationEvent{Type: eventbus.EventReservationAllocated, ResourceID: "mcu"}))

	msg := readEvent(t, conn)
	assert.Equal(t, "event", msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, "mcu", msg.Event.ResourceID, "过滤其他资源的事件")

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "ping"}))
	assert.Equal(t, "pong", readEvent(t, conn).Type)

	// 断线重连补发历史事件
	replay := dialEvents(t, s, "?from=0")
	first := readEvent(t, replay)
	second := readEvent(t, replay)
	assert.Equal(t, "other", first.Event.ResourceID)
	assert.Equal(t, "mcu", second.Event.ResourceID)

	conn.Close()
	assert.Eventually(t, func() bool { return s.handler.eventGateway.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
}
