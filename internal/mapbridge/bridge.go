// Package mapbridge relays commands between the client and the embedded web
// map surface. The surface is a locally served page that connects back over a
// websocket; commands flow out as {action, ...data} JSON and map events flow
// in on the same connection.
package mapbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/beekyynd/taxi/pkg/logger"
)

const (
	// Time allowed to write a message to the surface
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the surface
	pongWait = 60 * time.Second

	// Send pings to the surface with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from the surface
	maxMessageSize = 64 * 1024

	// Outbound buffer per surface connection; overflow drops the oldest
	// command so the surface always converges on the latest state.
	sendBuffer = 16
)

// Inbound is a message from the map surface. Two wire shapes are accepted:
// a {type, payload} envelope and a bare {lat, lng} object, which is treated
// as a map move.
type Inbound struct {
	Type  string
	Lat   float64
	Lng   float64
	Query string
}

// Inbound event types.
const (
	// TypeMapMove is emitted while the user pans the map.
	TypeMapMove = "mapMove"

	// TypeSearchAddress carries an address typed into the surface's search
	// box, to be forward geocoded by the shell.
	TypeSearchAddress = "searchAddress"
)

// Handler receives inbound surface messages.
type Handler func(Inbound)

type surfaceConn struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// Bridge serves the map page and relays messages to connected surfaces.
// Sends are fire-and-forget: a surface that cannot keep up loses older
// commands, never the newest.
type Bridge struct {
	listenAddr string
	mapKey     string
	server     *http.Server

	mu       sync.Mutex
	surfaces map[string]*surfaceConn
	handler  Handler
	last     []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The bridge binds to loopback; the surface is our own page.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewBridge creates a Bridge listening on addr.
func NewBridge(listenAddr, googleMapKey string) *Bridge {
	return &Bridge{
		listenAddr: listenAddr,
		mapKey:     googleMapKey,
		surfaces:   make(map[string]*surfaceConn),
	}
}

// OnMessage registers the inbound message handler. Only one handler is
// active; the lifecycle shell owns the subscription.
func (b *Bridge) OnMessage(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

// Send relays {action, ...data} to every connected surface. A surface
// attaching later receives the most recent command on connect.
func (b *Bridge) Send(action string, data map[string]interface{}) error {
	if action == "" {
		return fmt.Errorf("mapbridge: empty action")
	}

	flat := make(map[string]interface{}, len(data)+1)
	for key, value := range data {
		flat[key] = value
	}
	flat["action"] = action

	payload, err := json.Marshal(flat)
	if err != nil {
		return fmt.Errorf("mapbridge: encode %s: %w", action, err)
	}

	b.mu.Lock()
	b.last = payload
	conns := make([]*surfaceConn, 0, len(b.surfaces))
	for _, surface := range b.surfaces {
		conns = append(conns, surface)
	}
	b.mu.Unlock()

	for _, surface := range conns {
		surface.enqueue(payload)
	}
	return nil
}

// enqueue pushes a payload, dropping the oldest buffered command on overflow.
// A surface that detached between the sender's snapshot and this call is
// skipped; its channel is already closed.
func (s *surfaceConn) enqueue(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.send <- payload:
			return
		default:
			select {
			case <-s.send:
			default:
			}
		}
	}
}

// close marks the surface gone and closes its channel exactly once.
func (s *surfaceConn) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// Start begins serving the map page and websocket endpoint. It returns once
// the listener is running; Serve errors other than a clean close are logged.
func (b *Bridge) Start() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	b.registerRoutes(router)

	b.server = &http.Server{Addr: b.listenAddr, Handler: router}

	go func() {
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("map bridge server stopped", zap.Error(err))
		}
	}()

	logger.Info("map bridge listening", zap.String("addr", b.listenAddr))
	return nil
}

func (b *Bridge) registerRoutes(router *gin.Engine) {
	router.GET("/", b.handleMapPage)
	router.GET("/ws", b.handleSurface)
}

// Close disconnects all surfaces and stops the server.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	conns := make([]*surfaceConn, 0, len(b.surfaces))
	for id, surface := range b.surfaces {
		conns = append(conns, surface)
		delete(b.surfaces, id)
	}
	b.mu.Unlock()

	for _, surface := range conns {
		surface.close()
	}

	if b.server == nil {
		return nil
	}
	return b.server.Shutdown(ctx)
}

func (b *Bridge) handleSurface(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("surface upgrade failed", zap.Error(err))
		return
	}

	surface := &surfaceConn{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	b.mu.Lock()
	b.surfaces[surface.id] = surface
	last := b.last
	b.mu.Unlock()

	if last != nil {
		surface.enqueue(last)
	}

	logger.Debug("map surface attached", zap.String("surface_id", surface.id))
	go b.writePump(surface)
	go b.readPump(surface)
}

func (b *Bridge) readPump(surface *surfaceConn) {
	defer func() {
		b.detach(surface)
		surface.conn.Close()
	}()

	surface.conn.SetReadLimit(maxMessageSize)
	surface.conn.SetReadDeadline(time.Now().Add(pongWait))
	surface.conn.SetPongHandler(func(string) error {
		surface.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := surface.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("surface read error", zap.String("surface_id", surface.id), zap.Error(err))
			}
			return
		}

		inbound, ok := parseInbound(raw)
		if !ok {
			logger.Debug("unrecognized surface message", zap.ByteString("raw", raw))
			continue
		}

		b.mu.Lock()
		handler := b.handler
		b.mu.Unlock()
		if handler != nil {
			handler(inbound)
		}
	}
}

func (b *Bridge) writePump(surface *surfaceConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		surface.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-surface.send:
			surface.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				surface.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := surface.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			surface.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := surface.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (b *Bridge) detach(surface *surfaceConn) {
	b.mu.Lock()
	delete(b.surfaces, surface.id)
	b.mu.Unlock()
	surface.close()
}

// parseInbound accepts both surface message shapes.
func parseInbound(raw []byte) (Inbound, bool) {
	var msg struct {
		Type    string `json:"type"`
		Payload *struct {
			Lat   float64 `json:"lat"`
			Lng   float64 `json:"lng"`
			Query string  `json:"query"`
		} `json:"payload"`
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Inbound{}, false
	}

	if msg.Type != "" && msg.Payload != nil {
		return Inbound{Type: msg.Type, Lat: msg.Payload.Lat, Lng: msg.Payload.Lng, Query: msg.Payload.Query}, true
	}
	if msg.Lat != nil && msg.Lng != nil {
		return Inbound{Type: TypeMapMove, Lat: *msg.Lat, Lng: *msg.Lng}, true
	}
	return Inbound{}, false
}
