package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bhoriuchi/graphql-ws-client/logger"
	"github.com/bhoriuchi/graphql-ws-client/ws/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = protocol.WriteTimeout
	DefaultBufferSize       = 256

	closeTimeout = time.Second
)

// Config configures websocket transports
type Config struct {
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
	BufferSize       int
	Logger           *logger.LogWrapper
}

// WebsocketDialer dials gorilla websocket transports
type WebsocketDialer struct {
	config Config
	dialer websocket.Dialer
}

// NewWebsocketDialer creates a dialer, zero config values use the defaults
func NewWebsocketDialer(config Config) *WebsocketDialer {
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.Logger == nil {
		config.Logger = logger.NewNoopLogger()
	}

	return &WebsocketDialer{
		config: config,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
	}
}

// Dial starts connecting in the background
func (d *WebsocketDialer) Dial(url string, subprotocol string, events Events) Transport {
	ctx, cancel := context.WithCancel(context.Background())

	t := &wsTransport{
		id:       uuid.NewString(),
		config:   d.config,
		events:   events,
		outgoing: make(chan []byte, d.config.BufferSize),
		cancel:   cancel,
	}
	t.log = d.config.Logger.WithField("transportId", t.id)

	dialer := d.dialer
	dialer.Subprotocols = []string{subprotocol}

	go t.run(ctx, &dialer, url, subprotocol)
	return t
}

// wsTransport is a single websocket connection
type wsTransport struct {
	id        string
	config    Config
	log       *logger.LogWrapper
	events    Events
	ws        *websocket.Conn
	outgoing  chan []byte
	cancel    context.CancelFunc
	mx        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func (t *wsTransport) run(ctx context.Context, dialer *websocket.Dialer, url, subprotocol string) {
	defer t.cancel()

	ws, rsp, err := dialer.DialContext(ctx, url, t.config.Header)
	if rsp != nil && rsp.Body != nil {
		rsp.Body.Close()
	}

	if err != nil {
		t.finish(fmt.Errorf("dial %s: %w", url, err))
		return
	}

	if ws.Subprotocol() != subprotocol {
		ws.Close()
		t.finish(fmt.Errorf("%w: wanted %q, got %q", ErrSubprotocolNotAccepted, subprotocol, ws.Subprotocol()))
		return
	}

	t.mx.Lock()
	if t.closed {
		t.mx.Unlock()
		ws.Close()
		t.finish(ErrClosed)
		return
	}
	t.ws = ws
	t.mx.Unlock()

	if t.config.ReadLimit > 0 {
		ws.SetReadLimit(t.config.ReadLimit)
	}

	t.log.Debugf("websocket connected")
	go t.writeLoop(ws)

	if t.events.OnOpen != nil {
		t.events.OnOpen()
	}

	t.readLoop(ws)
}

// Send queues a message for the write loop
func (t *wsTransport) Send(data []byte) error {
	t.mx.Lock()
	defer t.mx.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.ws == nil {
		return ErrNotOpen
	}

	select {
	case t.outgoing <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting messages, flushes the queued ones and performs
// the closing handshake
func (t *wsTransport) Close() error {
	t.mx.Lock()
	open := t.ws != nil
	t.markClosed()
	t.mx.Unlock()

	// abort a dial still in progress
	if !open {
		t.cancel()
	}

	return nil
}

// markClosed must be called with the lock held
func (t *wsTransport) markClosed() {
	if !t.closed {
		t.closed = true
		close(t.outgoing)
	}
}

func (t *wsTransport) writeLoop(ws *websocket.Conn) {
	for data := range t.outgoing {
		ws.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))

		// a timed out write leaves the websocket corrupt, close it and let
		// the read loop report the failure
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			t.log.WithError(err).Warnf("failed to write message")
			ws.Close()
			return
		}
	}

	// outgoing was closed, send the close frame and give the server a
	// moment to answer it
	deadline := time.Now().Add(closeTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && err != websocket.ErrCloseSent {
		t.log.WithError(err).Debugf("failed to write close message")
		ws.Close()
		return
	}
	ws.SetReadDeadline(deadline)
}

func (t *wsTransport) readLoop(ws *websocket.Conn) {
	defer ws.Close()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Debugf("websocket closed normally")
				err = nil
			} else if t.isClosed() {
				err = nil
			}

			t.finish(err)
			return
		}

		if t.events.OnMessage != nil {
			t.events.OnMessage(data)
		}
	}
}

func (t *wsTransport) isClosed() bool {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.closed
}

// finish reports the close exactly once
func (t *wsTransport) finish(err error) {
	t.closeOnce.Do(func() {
		t.mx.Lock()
		t.markClosed()
		t.mx.Unlock()

		if err != nil {
			t.log.WithError(err).Debugf("websocket closed")
		}

		if t.events.OnClose != nil {
			t.events.OnClose(err)
		}
	})
}
