// Package socketio is a minimal Socket.IO client (Engine.IO v3 and v4,
// websocket transport only) used as the event channel's transport.
package socketio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/omnisync/internal/channel"
)

// Config describes the Socket.IO endpoint.
type Config struct {
	URL              string // http(s) or ws(s) origin of the server
	Path             string // defaults to /socket.io/
	EIO              int    // Engine.IO protocol version, 3 or 4
	Namespace        string // defaults to "/"
	Header           http.Header
	HandshakeTimeout time.Duration
}

// Transport dials Socket.IO sessions over websocket.
type Transport struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *zap.Logger
}

// New creates a transport. Zero config fields get Socket.IO defaults.
func New(cfg Config, logger *zap.Logger) *Transport {
	if cfg.Path == "" {
		cfg.Path = "/socket.io/"
	}
	if cfg.EIO != 4 {
		cfg.EIO = 3
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "/"
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		cfg:    cfg,
		logger: logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   64 * 1024,
			WriteBufferSize:  64 * 1024,
		},
	}
}

// Endpoint returns the websocket URL the transport dials.
func (t *Transport) Endpoint() (string, error) {
	u, err := url.Parse(t.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported socket url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Trim(t.cfg.Path, "/") + "/"
	q := u.Query()
	q.Set("EIO", strconv.Itoa(t.cfg.EIO))
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens a websocket, performs the Engine.IO handshake and joins the
// namespace.
func (t *Transport) Dial(ctx context.Context) (channel.Conn, error) {
	endpoint, err := t.Endpoint()
	if err != nil {
		return nil, err
	}
	ws, resp, err := t.dialer.DialContext(ctx, endpoint, t.cfg.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", endpoint, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	c := &conn{ws: ws, eio: t.cfg.EIO, namespace: t.cfg.Namespace, logger: t.logger, done: make(chan struct{})}
	if err := c.handshake(t.cfg.HandshakeTimeout); err != nil {
		_ = ws.Close()
		return nil, err
	}
	t.logger.Debug("socket.io session open",
		zap.String("sid", c.sid),
		zap.Int("eio", c.eio),
		zap.Duration("ping_interval", c.pingInterval),
	)
	if c.eio == 3 {
		go c.pingLoop()
	}
	return c, nil
}

type conn struct {
	ws        *websocket.Conn
	eio       int
	namespace string
	logger    *zap.Logger

	sid          string
	pingInterval time.Duration
	pingTimeout  time.Duration

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (c *conn) handshake(timeout time.Duration) error {
	_ = c.ws.SetReadDeadline(time.Now().Add(timeout))
	defer func() { _ = c.ws.SetReadDeadline(time.Time{}) }()

	msg, err := c.readText()
	if err != nil {
		return fmt.Errorf("read open packet: %w", err)
	}
	open, err := parseOpen(msg)
	if err != nil {
		return err
	}
	c.sid = open.SID
	c.pingInterval = open.interval()
	c.pingTimeout = open.timeout()

	// v4 requires an explicit connect; v3 joins "/" implicitly.
	if c.eio == 4 || c.namespace != "/" {
		if err := c.write(connectPacket(c.namespace)); err != nil {
			return fmt.Errorf("send connect: %w", err)
		}
	}
	for {
		msg, err := c.readText()
		if err != nil {
			return fmt.Errorf("await connect: %w", err)
		}
		if len(msg) == 0 {
			continue
		}
		switch msg[0] {
		case eioPing:
			if err := c.write(string(eioPong) + msg[1:]); err != nil {
				return err
			}
			continue
		case eioMessage:
		default:
			continue
		}
		p, err := parseSocketPacket(msg[1:])
		if err != nil {
			return err
		}
		if p.namespace != c.namespace {
			continue
		}
		switch p.typ {
		case sioConnect:
			return nil
		case sioError:
			return fmt.Errorf("socket.io: connect refused: %s", clip(p.data))
		}
	}
}

// Read returns the next event. Pings are answered and other control
// packets skipped.
func (c *conn) Read() (string, json.RawMessage, error) {
	for {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.pingInterval + c.pingTimeout))
		msg, err := c.readText()
		if err != nil {
			return "", nil, err
		}
		if len(msg) == 0 {
			continue
		}
		switch msg[0] {
		case eioPing:
			if err := c.write(string(eioPong) + msg[1:]); err != nil {
				return "", nil, err
			}
			continue
		case eioPong, eioNoop:
			continue
		case eioClose:
			return "", nil, ErrServerClosed
		case eioMessage:
		default:
			continue
		}

		p, err := parseSocketPacket(msg[1:])
		if err != nil {
			c.logger.Warn("skipping socket packet", zap.Error(err))
			continue
		}
		if p.namespace != c.namespace {
			continue
		}
		switch p.typ {
		case sioEvent:
			name, payload, err := decodeEvent(p.data)
			if err != nil {
				c.logger.Warn("skipping event packet", zap.Error(err))
				continue
			}
			return name, payload, nil
		case sioDisconnect:
			return "", nil, ErrServerClosed
		case sioError:
			c.logger.Warn("socket.io error packet", zap.String("data", clip(p.data)))
		case sioAck, sioConnect:
		}
	}
}

// Emit sends a named event with a JSON-encodable payload.
func (c *conn) Emit(event string, payload any) error {
	frame, err := encodeEvent(c.namespace, event, payload)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// Close leaves the namespace and closes the websocket.
func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.write(string([]byte{eioMessage, sioDisconnect}))
		err = c.ws.Close()
	})
	return err
}

func (c *conn) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.write(string(eioPing)); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *conn) write(frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (c *conn) readText() (string, error) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			return "", err
		}
		if typ == websocket.TextMessage {
			return string(data), nil
		}
	}
}
