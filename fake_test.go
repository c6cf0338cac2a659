package client_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	client "github.com/bhoriuchi/graphql-ws-client"
	"github.com/bhoriuchi/graphql-ws-client/ws/protocol"
	"github.com/bhoriuchi/graphql-ws-client/ws/transport"
	"github.com/stretchr/testify/require"
)

// fakeDialer hands out fakeTransports the test drives by hand
type fakeDialer struct {
	dialed chan *fakeTransport
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeTransport, 16)}
}

func (d *fakeDialer) Dial(url, subprotocol string, events transport.Events) transport.Transport {
	t := &fakeTransport{
		url:         url,
		subprotocol: subprotocol,
		events:      events,
	}
	d.dialed <- t
	return t
}

// next waits for the client to dial
func (d *fakeDialer) next(t *testing.T) *fakeTransport {
	t.Helper()

	select {
	case ft := <-d.dialed:
		return ft
	case <-time.After(2 * time.Second):
		t.Fatal("client did not dial")
		return nil
	}
}

// assertNoDial fails if the client dials within wait
func (d *fakeDialer) assertNoDial(t *testing.T, wait time.Duration) {
	t.Helper()

	select {
	case <-d.dialed:
		t.Fatal("unexpected dial")
	case <-time.After(wait):
	}
}

type fakeTransport struct {
	url         string
	subprotocol string
	events      transport.Events

	mx     sync.Mutex
	open   bool
	closed bool
	sent   []protocol.OperationMessage
}

func (t *fakeTransport) Send(data []byte) error {
	t.mx.Lock()
	defer t.mx.Unlock()

	if t.closed {
		return transport.ErrClosed
	}
	if !t.open {
		return transport.ErrNotOpen
	}

	msg := protocol.OperationMessage{}
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mx.Lock()
	defer t.mx.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	go t.events.OnClose(nil)
	return nil
}

// Open reports the transport as connected
func (t *fakeTransport) Open() {
	t.mx.Lock()
	t.open = true
	t.mx.Unlock()

	t.events.OnOpen()
}

// Receive delivers a raw inbound message
func (t *fakeTransport) Receive(msg string) {
	t.events.OnMessage([]byte(msg))
}

// Drop simulates the server going away
func (t *fakeTransport) Drop() {
	t.mx.Lock()
	if t.closed {
		t.mx.Unlock()
		return
	}
	t.closed = true
	t.mx.Unlock()

	t.events.OnClose(errors.New("connection reset by peer"))
}

func (t *fakeTransport) Sent() []protocol.OperationMessage {
	t.mx.Lock()
	defer t.mx.Unlock()
	return append([]protocol.OperationMessage{}, t.sent...)
}

func (t *fakeTransport) SentTypes() []protocol.MessageType {
	types := []protocol.MessageType{}
	for _, msg := range t.Sent() {
		types = append(types, msg.Type)
	}
	return types
}

func (t *fakeTransport) IsClosed() bool {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.closed
}

// recorder collects the callbacks of one observer
type recorder struct {
	mx        sync.Mutex
	results   []*protocol.ExecutionResult
	errs      []error
	completed int
}

func (r *recorder) observer() client.Observer {
	return client.Observer{
		Next: func(result *client.ExecutionResult) {
			r.mx.Lock()
			r.results = append(r.results, result)
			r.mx.Unlock()
		},
		Error: func(err error) {
			r.mx.Lock()
			r.errs = append(r.errs, err)
			r.mx.Unlock()
		},
		Complete: func() {
			r.mx.Lock()
			r.completed++
			r.mx.Unlock()
		},
	}
}

func (r *recorder) Results() []*protocol.ExecutionResult {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]*protocol.ExecutionResult{}, r.results...)
}

func (r *recorder) Errors() []error {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]error{}, r.errs...)
}

func (r *recorder) Completed() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.completed
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "client did not close")
	}
}
