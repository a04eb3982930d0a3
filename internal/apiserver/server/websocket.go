package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"shongo-controller/internal/shared/eventbus"
	"shongo-controller/pkg/logging"
)

const (
	// backlogLimit 重连时补发的历史事件上限
	backlogLimit = 100
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsMessage 推送给客户端的消息
//
// Type: event | ping | pong
type wsMessage struct {
	Type  string                     `json:"type"`
	Event *eventbus.ReservationEvent `json:"event,omitempty"`
}

// eventFilter 客户端订阅条件，空字段不过滤
type eventFilter struct {
	resourceID string
	domainID   string
	requestID  string
}

func (f eventFilter) match(e *eventbus.ReservationEvent) bool {
	return (f.resourceID == "" || f.resourceID == e.ResourceID) &&
		(f.domainID == "" || f.domainID == e.DomainID) &&
		(f.requestID == "" || f.requestID == e.RequestID)
}

// EventGateway 预约事件 WebSocket 网关
//
// 每个连接独立订阅事件总线；连接时可通过 from 参数补发该事件之后的历史事件。
type EventGateway struct {
	events  eventbus.ReservationEventBus
	metrics *Metrics
	logger  *logging.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

// NewEventGateway 创建事件网关
func NewEventGateway(events eventbus.ReservationEventBus, metrics *Metrics, logger *logging.Logger) *EventGateway {
	if logger == nil {
		logger = logging.Default("ws")
	}
	return &EventGateway{
		events:  events,
		metrics: metrics,
		logger:  logger,
		clients: make(map[*websocket.Conn]bool),
	}
}

// ClientCount 当前连接数
func (g *EventGateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// HandleWebSocket 预约事件推送
//
// 路由: GET /ws/reservations?from=&resource_id=&domain_id=&request_id=
func (g *EventGateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := eventFilter{
		resourceID: q.Get("resource_id"),
		domainID:   q.Get("domain_id"),
		requestID:  q.Get("request_id"),
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 先订阅再补发历史，避免两者之间的事件丢失
	sub, err := g.events.SubscribeReservationEvents(ctx)
	if err != nil {
		g.logger.WithError(err).Warn("Subscribe reservation events failed")
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "event bus unavailable"))
		conn.Close()
		return
	}

	g.register(conn)
	defer g.unregister(conn)

	var writeMu sync.Mutex
	send := func(msg wsMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
		if g.metrics != nil {
			g.metrics.RecordWSMessage("out", msg.Type)
		}
		return nil
	}

	replayed := make(map[string]bool)
	if from := q.Get("from"); from != "" {
		backlog, err := g.events.GetReservationEvents(ctx, from, backlogLimit)
		if err != nil {
			g.logger.WithError(err).Warn("Read event backlog failed", "from", from)
		}
		for _, e := range backlog {
			replayed[e.ID] = true
			if !filter.match(e) {
				continue
			}
			if send(wsMessage{Type: "event", Event: e}) != nil {
				return
			}
		}
	}

	go g.readPump(conn, cancel, send)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			if replayed[e.ID] {
				continue
			}
			if !filter.match(e) {
				continue
			}
			if send(wsMessage{Type: "event", Event: e}) != nil {
				return
			}
		case <-ticker.C:
			if send(wsMessage{Type: "ping"}) != nil {
				return
			}
		}
	}
}

// readPump 读取客户端消息，连接关闭时取消推送
func (g *EventGateway) readPump(conn *websocket.Conn, cancel context.CancelFunc, send func(wsMessage) error) {
	defer cancel()
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if g.metrics != nil {
			g.metrics.RecordWSMessage("in", msg.Type)
		}
		if msg.Type == "ping" {
			if send(wsMessage{Type: "pong"}) != nil {
				return
			}
		}
	}
}

func (g *EventGateway) register(conn *websocket.Conn) {
	g.mu.Lock()
	g.clients[conn] = true
	g.mu.Unlock()
	if g.metrics != nil {
		g.metrics.WSConnectionOpened()
	}
}

func (g *EventGateway) unregister(conn *websocket.Conn) {
	g.mu.Lock()
	if g.clients[conn] {
		delete(g.clients, conn)
		conn.Close()
	}
	g.mu.Unlock()
	if g.metrics != nil {
		g.metrics.WSConnectionClosed()
	}
}
