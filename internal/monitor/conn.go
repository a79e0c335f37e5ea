package monitor

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/HefnySco/droneengage-mavlink/internal/logging"
)

// Conn wraps a monitor WebSocket connection with read/write pumps.
type Conn struct {
	id     string
	ws     *websocket.Conn
	hub    *Hub
	codec  codec
	send   chan Event
	once   sync.Once
	cancel context.CancelFunc
	logger *logging.Logger

	maxMessageSize int64
}

func newConn(id string, ws *websocket.Conn, hub *Hub, c codec, maxMessageSize int) *Conn {
	return &Conn{
		id:             id,
		ws:             ws,
		hub:            hub,
		codec:          c,
		send:           make(chan Event, 256),
		logger:         hub.logger,
		maxMessageSize: int64(maxMessageSize),
	}
}

// Run starts the read and write pumps. It blocks until the connection is closed.
func (c *Conn) Run(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.hub.Register(c)
	defer c.hub.Unregister(c)

	c.ws.SetReadLimit(c.maxMessageSize)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		c.writePump(ctx)
	}()

	go func() {
		defer wg.Done()
		c.readPump(ctx)
	}()

	wg.Wait()
	c.ws.Close(websocket.StatusNormalClosure, "")
}

// readPump answers pings; monitor clients send nothing else.
func (c *Conn) readPump(ctx context.Context) {
	defer c.close()

	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				c.logger.Debugf("[monitor %s] closed normally", c.id)
			} else {
				c.logger.Debugf("[monitor %s] read error: %v", c.id, err)
			}
			return
		}

		if typ != websocket.MessageBinary {
			c.ws.Close(websocket.StatusUnsupportedData, "binary frames only")
			return
		}

		e, err := c.codec.unmarshal(data)
		if err != nil {
			c.logger.Warnf("[monitor %s] bad frame: %v", c.id, err)
			continue
		}
		if e.Kind == KindPing {
			c.enqueue(Event{Kind: KindPong, At: e.At})
		}
	}
}

// writePump writes queued events to the WebSocket.
func (c *Conn) writePump(ctx context.Context) {
	defer c.close()

	for {
		select {
		case e := <-c.send:
			data, err := c.codec.marshal(e)
			if err != nil {
				c.logger.Warnf("[monitor %s] encode %s event: %v", c.id, e.Kind, err)
				continue
			}
			if err := c.ws.Write(ctx, websocket.MessageBinary, data); err != nil {
				c.logger.Debugf("[monitor %s] write error: %v", c.id, err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Conn) enqueue(e Event) {
	select {
	case c.send <- e:
	default:
		c.logger.Warnf("[monitor %s] send buffer full, dropping %s event", c.id, e.Kind)
	}
}

// close cancels the connection context, closing both pumps.
func (c *Conn) close() {
	c.once.Do(func() {
		c.cancel()
	})
}

func connID() string {
	return "mon-" + uuid.NewString()
}
