package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"nhooyr.io/websocket"

	"github.com/HefnySco/droneengage-mavlink/internal/logging"
	"github.com/HefnySco/droneengage-mavlink/internal/metrics"
)

// setupTestServer serves the monitor router on an httptest server.
func setupTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.StatusChanged(5)

	hub := NewHub(logging.Discard(), m)
	go hub.Run()

	status := func(ctx context.Context) (any, error) {
		return map[string]any{"partyId": "drone-1", "status": 5}, nil
	}
	server := httptest.NewServer(NewRouter(hub, status, reg))

	t.Cleanup(func() {
		server.Close()
		hub.Stop()
	})
	return hub, server
}

func dial(t *testing.T, ctx context.Context, server *httptest.Server, subprotocol string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{Subprotocols: []string{subprotocol}})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// waitForClients waits until the hub has registered n connections.
func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Count() = %d, want %d", hub.Count(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUpgradeSubprotocol(t *testing.T) {
	tests := []struct {
		name        string
		subprotocol string
		wantOK      bool
	}{
		{name: "protobuf accepted", subprotocol: SubprotocolProto, wantOK: true},
		{name: "cbor accepted", subprotocol: SubprotocolCBOR, wantOK: true},
		{name: "unknown rejected", subprotocol: "wrong.v1", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, server := setupTestServer(t)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conn := dial(t, ctx, server, tt.subprotocol)

			if tt.wantOK {
				if conn.Subprotocol() != tt.subprotocol {
					t.Errorf("Subprotocol() = %q, want %q", conn.Subprotocol(), tt.subprotocol)
				}
				return
			}

			_, _, err := conn.Read(ctx)
			if err == nil {
				t.Fatal("expected connection to be closed for wrong subprotocol")
			}
			if status := websocket.CloseStatus(err); status != websocket.StatusPolicyViolation {
				t.Errorf("close status = %d, want %d", status, websocket.StatusPolicyViolation)
			}
		})
	}
}

func TestBroadcastProtobuf(t *testing.T) {
	hub, server := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server, SubprotocolProto)
	waitForClients(t, hub, 1)

	hub.Broadcast(NewEvent(KindStatus, map[string]any{"status": 5, "name": "registered"}))

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if typ != websocket.MessageBinary {
		t.Fatalf("message type = %v, want binary", typ)
	}

	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		t.Fatalf("proto.Unmarshal: %v", err)
	}
	m := s.AsMap()
	if m["kind"] != KindStatus {
		t.Errorf("kind = %v, want %s", m["kind"], KindStatus)
	}
	if d := m["data"].(map[string]any); d["status"] != float64(5) || d["name"] != "registered" {
		t.Errorf("data = %v", d)
	}
}

func TestPingPongCBOR(t *testing.T) {
	hub, server := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server, SubprotocolCBOR)
	waitForClients(t, hub, 1)

	ping, err := cbor.Marshal(Event{Kind: KindPing, At: 12345})
	if err != nil {
		t.Fatalf("cbor.Marshal: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageBinary, ping); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var pong Event
	if err := cbor.Unmarshal(data, &pong); err != nil {
		t.Fatalf("cbor.Unmarshal: %v", err)
	}
	if pong.Kind != KindPong || pong.At != 12345 {
		t.Errorf("pong = %+v, want kind pong at 12345", pong)
	}
}

func TestTextFrameClosesConnection(t *testing.T) {
	hub, server := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server, SubprotocolCBOR)
	waitForClients(t, hub, 1)

	if err := conn.Write(ctx, websocket.MessageText, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, _, err := conn.Read(ctx)
	if status := websocket.CloseStatus(err); status != websocket.StatusUnsupportedData {
		t.Errorf("close status = %d, want %d", status, websocket.StatusUnsupportedData)
	}
}

func TestStatusAndMetricsEndpoints(t *testing.T) {
	_, server := setupTestServer(t)

	resp, err := http.Get(server.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status code = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if body["partyId"] != "drone-1" {
		t.Errorf("status body = %v", body)
	}

	mresp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer mresp.Body.Close()
	text, _ := io.ReadAll(mresp.Body)
	if !strings.Contains(string(text), "demavlink_connection_status 5") {
		t.Errorf("/metrics missing connection status:\n%s", text)
	}
}

func TestCodecsRoundTrip(t *testing.T) {
	for _, sub := range []string{SubprotocolProto, SubprotocolCBOR} {
		t.Run(sub, func(t *testing.T) {
			c, ok := codecFor(sub)
			if !ok {
				t.Fatalf("codecFor(%s) not found", sub)
			}
			data, err := c.marshal(Event{Kind: KindInbound, At: 99, Data: map[string]any{"type": 1004}})
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			e, err := c.unmarshal(data)
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if e.Kind != KindInbound || e.At != 99 {
				t.Errorf("event = %+v", e)
			}
		})
	}

	if _, ok := codecFor("json"); ok {
		t.Error("codecFor(json) found")
	}
}
