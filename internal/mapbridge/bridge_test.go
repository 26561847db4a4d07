package mapbridge

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBridge(t *testing.T) (*Bridge, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bridge := NewBridge("127.0.0.1:0", "test-key")
	router := gin.New()
	bridge.registerRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return bridge, server
}

func dialSurface(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readCommand(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return decoded
}

func TestSendFlattensActionAndData(t *testing.T) {
	bridge, server := setupBridge(t)
	conn := dialSurface(t, server)

	// wait until the surface is registered before sending
	require.Eventually(t, func() bool {
		bridge.mu.Lock()
		defer bridge.mu.Unlock()
		return len(bridge.surfaces) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, bridge.Send("setMarkers", map[string]interface{}{
		"pickup":      map[string]interface{}{"lat": 1.5, "lng": 2.5},
		"destination": map[string]interface{}{"lat": 3.5, "lng": 4.5},
	}))

	msg := readCommand(t, conn)
	assert.Equal(t, "setMarkers", msg["action"])
	pickup := msg["pickup"].(map[string]interface{})
	assert.Equal(t, 1.5, pickup["lat"])
}

func TestSendEmptyActionRejected(t *testing.T) {
	bridge := NewBridge("127.0.0.1:0", "test-key")
	assert.Error(t, bridge.Send("", nil))
}

func TestLateSurfaceReceivesLastCommand(t *testing.T) {
	bridge, server := setupBridge(t)

	// nobody connected yet; both sends succeed, only the last is retained
	require.NoError(t, bridge.Send("focusPickup", nil))
	require.NoError(t, bridge.Send("startPulsingAnimation", nil))

	conn := dialSurface(t, server)
	msg := readCommand(t, conn)
	assert.Equal(t, "startPulsingAnimation", msg["action"])
}

func TestInboundEnvelopeShape(t *testing.T) {
	bridge, server := setupBridge(t)

	received := make(chan Inbound, 1)
	bridge.OnMessage(func(msg Inbound) { received <- msg })

	conn := dialSurface(t, server)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"mapMove","payload":{"lat":37.96,"lng":58.32}}`)))

	select {
	case msg := <-received:
		assert.Equal(t, TypeMapMove, msg.Type)
		assert.InDelta(t, 37.96, msg.Lat, 1e-9)
		assert.InDelta(t, 58.32, msg.Lng, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound message delivered")
	}
}

func TestInboundFlatCoordinateShape(t *testing.T) {
	bridge, server := setupBridge(t)

	received := make(chan Inbound, 1)
	bridge.OnMessage(func(msg Inbound) { received <- msg })

	conn := dialSurface(t, server)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"lat":37.96,"lng":58.32}`)))

	select {
	case msg := <-received:
		assert.Equal(t, TypeMapMove, msg.Type)
		assert.InDelta(t, 37.96, msg.Lat, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound message delivered")
	}
}

func TestUnrecognizedInboundIgnored(t *testing.T) {
	bridge, server := setupBridge(t)

	received := make(chan Inbound, 1)
	bridge.OnMessage(func(msg Inbound) { received <- msg })

	conn := dialSurface(t, server)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"hello":"world"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"lat":1,"lng":2}`)))

	// only the valid coordinate message comes through
	select {
	case msg := <-received:
		assert.Equal(t, 1.0, msg.Lat)
	case <-time.After(2 * time.Second):
		t.Fatal("valid message was not delivered")
	}
	assert.Empty(t, received)
}

func TestEnqueueAfterDetachIsNoOp(t *testing.T) {
	bridge := NewBridge("127.0.0.1:0", "test-key")

	surface := &surfaceConn{id: "s1", send: make(chan []byte, 1)}
	bridge.surfaces[surface.id] = surface

	// a disconnect can land between Send's surface snapshot and the enqueue;
	// the late enqueue must be dropped, not sent on the closed channel
	bridge.detach(surface)
	assert.NotPanics(t, func() {
		surface.enqueue([]byte(`{"action":"fitRoute"}`))
	})

	// detach is idempotent
	assert.NotPanics(t, func() { bridge.detach(surface) })
}

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Inbound
		ok   bool
	}{
		{"envelope", `{"type":"mapMove","payload":{"lat":1,"lng":2}}`, Inbound{Type: "mapMove", Lat: 1, Lng: 2}, true},
		{"flat", `{"lat":1,"lng":2}`, Inbound{Type: "mapMove", Lat: 1, Lng: 2}, true},
		{"address search", `{"type":"searchAddress","payload":{"query":"10 Downing St"}}`, Inbound{Type: "searchAddress", Query: "10 Downing St"}, true},
		{"typed without payload", `{"type":"mapMove"}`, Inbound{}, false},
		{"missing lng", `{"lat":1}`, Inbound{}, false},
		{"garbage", `[1,2,3]`, Inbound{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseInbound([]byte(tt.raw))
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestMapPageCarriesKey(t *testing.T) {
	_, server := setupBridge(t)

	resp, err := server.Client().Get(server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := make([]byte, 64*1024)
	n, _ := resp.Body.Read(buf)
	body := string(buf[:n])
	assert.Contains(t, body, "key=test-key")
	assert.NotContains(t, body, "__MAP_KEY__")
}
