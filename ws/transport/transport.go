package transport

import (
	"errors"
)

var (
	ErrNotOpen                = errors.New("transport is not open")
	ErrClosed                 = errors.New("transport is closed")
	ErrBufferFull             = errors.New("transport send buffer is full")
	ErrSubprotocolNotAccepted = errors.New("server did not accept the subprotocol")
)

// Events receives the lifecycle of a single transport instance. The
// callbacks are invoked from one goroutine in arrival order: OnOpen at most
// once and before any OnMessage, OnClose exactly once and last. They are
// never invoked synchronously from Dial, Send or Close.
type Events struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnClose   func(err error)
}

// Transport is an opaque full-duplex message channel. Each Send is one
// self-contained text message.
type Transport interface {
	// Send queues a message, it fails when the transport is not open
	Send(data []byte) error

	// Close starts closing the transport. Messages queued before Close are
	// flushed first. OnClose fires once the transport is gone.
	Close() error
}

// Dialer opens transports. Dial returns immediately, the connection is
// established in the background and reported through events.
type Dialer interface {
	Dial(url string, subprotocol string, events Events) Transport
}

// DialerFunc adapts a function to the Dialer interface
type DialerFunc func(url string, subprotocol string, events Events) Transport

func (f DialerFunc) Dial(url string, subprotocol string, events Events) Transport {
	return f(url, subprotocol, events)
}
