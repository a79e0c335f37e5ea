package monitor

import (
	"net/http"

	"nhooyr.io/websocket"
)

// UpgradeHandler returns an HTTP handler that upgrades monitor clients to
// WebSocket. The subprotocol picks the frame encoding.
func UpgradeHandler(hub *Hub, maxMessageSize int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols: []string{SubprotocolProto, SubprotocolCBOR},
		})
		if err != nil {
			hub.logger.Warnf("[monitor] upgrade failed: %v", err)
			return
		}

		c, ok := codecFor(conn.Subprotocol())
		if !ok {
			conn.Close(websocket.StatusPolicyViolation, "unsupported subprotocol")
			return
		}

		id := connID()
		hub.logger.Infof("[monitor] new connection %s (%s) from %s", id, conn.Subprotocol(), r.RemoteAddr)
		newConn(id, conn, hub, c, maxMessageSize).Run(r.Context())
	}
}
