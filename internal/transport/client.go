package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/HefnySco/droneengage-mavlink/internal/logging"
	"github.com/HefnySco/droneengage-mavlink/internal/metrics"
	"github.com/HefnySco/droneengage-mavlink/internal/protocol"
	"github.com/HefnySco/droneengage-mavlink/internal/traffic"
)

// DefaultHeartbeat is how often the module ID is re-sent.
const DefaultHeartbeat = time.Second

// maxDatagram is the largest UDP payload.
const maxDatagram = 0xFFFF

// Backoff bounds after a failed socket read.
const (
	minReadBackoff = 5 * time.Millisecond
	maxReadBackoff = time.Second
)

// ErrClosed is returned by sends after Close.
var ErrClosed = errors.New("transport: client closed")

// Options configures a Client.
type Options struct {
	ListenAddr string
	TargetAddr string
	Module     Module
	Self       protocol.Self
	Heartbeat  time.Duration

	Optimizer *traffic.Optimizer
	Metrics   *metrics.Metrics
	Logger    *logging.Logger
}

// Client is the UDP link to the communicator. Sends are safe for
// concurrent use; received datagrams are delivered one at a time.
type Client struct {
	conn      *net.UDPConn
	read      func([]byte) (int, *net.UDPAddr, error)
	target    *net.UDPAddr
	codec     *protocol.Codec
	module    Module
	heartbeat time.Duration
	optimizer *traffic.Optimizer
	metrics   *metrics.Metrics
	logger    *logging.Logger

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	startOnce sync.Once
}

// NewClient binds the listening socket and resolves the target.
func NewClient(opts Options) (*Client, error) {
	laddr, err := net.ResolveUDPAddr("udp", opts.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve listen address: %w", err)
	}
	target, err := net.ResolveUDPAddr("udp", opts.TargetAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve target address: %w", err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}

	hb := opts.Heartbeat
	if hb <= 0 {
		hb = DefaultHeartbeat
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{
		conn:      conn,
		read:      conn.ReadFromUDP,
		target:    target,
		codec:     protocol.NewCodec(opts.Self),
		module:    opts.Module,
		heartbeat: hb,
		optimizer: opts.Optimizer,
		metrics:   opts.Metrics,
		logger:    logger,
		done:      make(chan struct{}),
	}, nil
}

// LocalAddr is the bound listening address.
func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Start runs the receive loop and the registration heartbeat until ctx is
// cancelled or Close is called. handler is never called concurrently.
func (c *Client) Start(ctx context.Context, handler func([]byte)) {
	c.startOnce.Do(func() {
		c.wg.Add(2)
		go c.readLoop(handler)
		go c.heartbeatLoop()

		go func() {
			select {
			case <-ctx.Done():
				c.Close()
			case <-c.done:
			}
		}()
	})
}

// Close stops both loops and closes the socket. It is safe to call more
// than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}

func (c *Client) readLoop(handler func([]byte)) {
	defer c.wg.Done()

	buf := make([]byte, maxDatagram)
	var backoff time.Duration
	for {
		n, from, err := c.read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			backoff = nextBackoff(backoff)
			c.logger.Warnf("[transport] read: %v (retry in %v)", err, backoff)
			select {
			case <-c.done:
				return
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0
		c.logger.Debugf("[transport] %d bytes from %s", n, from)

		data := make([]byte, n)
		copy(data, buf[:n])
		handler(data)
	}
}

// nextBackoff doubles the previous delay within the read backoff bounds.
func nextBackoff(prev time.Duration) time.Duration {
	if prev < minReadBackoff {
		return minReadBackoff
	}
	return min(prev*2, maxReadBackoff)
}

func (c *Client) heartbeatLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	resend := true
	for {
		if err := c.SendModuleID(resend); err != nil && !errors.Is(err, ErrClosed) {
			c.logger.Warnf("[transport] module id: %v", err)
		}
		resend = false

		select {
		case <-ticker.C:
		case <-c.done:
			return
		}
	}
}

// SendModuleID registers this module with the communicator.
func (c *Client) SendModuleID(resend bool) error {
	return c.send(protocol.TypeModuleID, func() ([]byte, error) {
		return c.codec.Encode("", protocol.TypeModuleID, true, c.module.Command(resend), nil)
	})
}

// SendJSON implements facade.Sender.
func (c *Client) SendJSON(target string, msgType int, internal bool, cmd map[string]any) error {
	if !c.allow(msgType) {
		return nil
	}
	return c.send(msgType, func() ([]byte, error) {
		return c.codec.Encode(target, msgType, internal, cmd, nil)
	})
}

// SendBinary implements facade.Sender.
func (c *Client) SendBinary(target string, msgType int, internal bool, cmd map[string]any, binary []byte) error {
	if !c.allow(msgType) {
		return nil
	}
	if binary == nil {
		binary = []byte{}
	}
	return c.send(msgType, func() ([]byte, error) {
		return c.codec.Encode(target, msgType, internal, cmd, binary)
	})
}

// SendRemoteExecute implements facade.Sender.
func (c *Client) SendRemoteExecute(command int) error {
	return c.send(protocol.TypeModuleRemoteExecute, func() ([]byte, error) {
		return c.codec.Encode("", protocol.TypeModuleRemoteExecute, true, map[string]any{"C": command}, nil)
	})
}

// SendSystem sends a message to the communicator itself.
func (c *Client) SendSystem(msgType int, cmd map[string]any) error {
	return c.send(msgType, func() ([]byte, error) {
		return c.codec.EncodeSystem(msgType, cmd)
	})
}

func (c *Client) allow(msgType int) bool {
	if c.optimizer == nil || c.optimizer.Allow(msgType) {
		return true
	}
	c.metrics.Throttled(msgType)
	return false
}

func (c *Client) send(msgType int, encode func() ([]byte, error)) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	data, err := encode()
	if err != nil {
		c.metrics.SendError(msgType)
		return err
	}
	if _, err := c.conn.WriteToUDP(data, c.target); err != nil {
		c.metrics.SendError(msgType)
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("write udp: %w", err)
	}
	c.metrics.Sent(msgType)
	return nil
}
