package client

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/bhoriuchi/graphql-ws-client/logger"
	"github.com/bhoriuchi/graphql-ws-client/metrics"
	"github.com/bhoriuchi/graphql-ws-client/options"
	"github.com/bhoriuchi/graphql-ws-client/utils/backoff"
	"github.com/bhoriuchi/graphql-ws-client/utils/interval"
	"github.com/bhoriuchi/graphql-ws-client/ws/protocol"
	"github.com/bhoriuchi/graphql-ws-client/ws/registry"
	"github.com/bhoriuchi/graphql-ws-client/ws/transport"
	"github.com/google/uuid"
)

// SubscriptionClient multiplexes GraphQL subscriptions over a single
// graphql-ws websocket and restarts them when the connection is recovered
type SubscriptionClient struct {
	url     string
	opts    *options.Options
	log     *logger.LogWrapper
	dialer  transport.Dialer
	metrics *metrics.Collector
	ops     *registry.Registry
	policy  *backoff.Backoff

	mx             sync.Mutex
	state          State
	conn           *connection
	nextID         uint64
	reconnectTimer *interval.Interval
	closeTimer     *interval.Interval
	done           chan struct{}
	err            error
}

// connection is one transport instance. Events from an instance that is no
// longer the client's current connection are ignored.
type connection struct {
	id        string
	t         transport.Transport
	log       *logger.LogWrapper
	alive     bool
	keepAlive *interval.Interval
}

// New creates a client and starts connecting to url
func New(url string, opts ...options.Option) (*SubscriptionClient, error) {
	if url == "" {
		return nil, ErrNoURL
	}

	o, err := options.New(opts...)
	if err != nil {
		return nil, err
	}

	c := &SubscriptionClient{
		url:   url,
		opts:  o,
		ops:   registry.New(),
		state: StateIdle,
		done:  make(chan struct{}),
		log: logger.NewLogWrapper(o.ResolveLogFunc(), map[string]interface{}{
			"url":         url,
			"subprotocol": protocol.Subprotocol,
		}),
		policy: backoff.NewBackoff(&backoff.Options{
			Min:         o.ReconnectBaseDelay,
			Max:         o.ReconnectMaxDelay,
			Jitter:      o.ReconnectJitter,
			Factor:      o.ReconnectFactor,
			MaxAttempts: o.ReconnectionAttempts,
		}),
	}

	if o.Registerer != nil {
		if c.metrics, err = metrics.New(o.Registerer, o.MetricsNamespace); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	c.dialer = o.Dialer
	if c.dialer == nil {
		c.dialer = transport.NewWebsocketDialer(transport.Config{
			Header:           o.Headers,
			HandshakeTimeout: o.HandshakeTimeout,
			Logger:           c.log,
		})
	}

	c.mx.Lock()
	c.connectLocked()
	c.mx.Unlock()

	return c, nil
}

// Done is closed once the client is closed, either by Close or because the
// connection could not be recovered
func (c *SubscriptionClient) Done() <-chan struct{} {
	return c.done
}

// Err returns ErrReconnectAttemptsExhausted when the client gave up
// reconnecting, nil otherwise
func (c *SubscriptionClient) Err() error {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.err
}

// Operations returns the number of registered operations
func (c *SubscriptionClient) Operations() int {
	return c.ops.Count()
}

// Close unsubscribes every operation, terminates the session and closes the
// transport once the close grace period has passed
func (c *SubscriptionClient) Close() error {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state == StateClosingByCaller || c.state == StateClosed {
		return nil
	}

	wasOpen := c.state == StateOpen
	c.state = StateClosingByCaller
	c.log.Debugf("closing client")

	interval.ClearTimeout(c.reconnectTimer)
	c.reconnectTimer = nil

	for _, op := range c.ops.RemoveAll() {
		c.stopLocked(op)
	}
	c.metrics.SetActiveOperations(0)

	if wasOpen && c.opts.ConnectionParams != nil {
		data, err := protocol.NewConnectionTerminateMessage()
		c.sendLocked(protocol.MsgConnectionTerminate, data, err)
	}

	if c.conn == nil {
		c.finishLocked(nil)
		return nil
	}

	t := c.conn.t
	if !wasOpen {
		t.Close()
		return nil
	}

	c.closeTimer = interval.SetTimeout(func() {
		t.Close()
	}, c.opts.CloseGracePeriod)

	return nil
}

// connectLocked dials a new transport unless one exists or the client is
// closing
func (c *SubscriptionClient) connectLocked() {
	if c.state == StateClosingByCaller || c.state == StateClosed || c.conn != nil {
		return
	}

	conn := &connection{id: uuid.NewString()}
	conn.log = c.log.WithField("connectionId", conn.id)

	c.state = StateConnecting
	c.conn = conn
	conn.log.Debugf("connecting")

	conn.t = c.dialer.Dial(c.url, protocol.Subprotocol, transport.Events{
		OnOpen: func() {
			c.handleOpen(conn)
		},
		OnMessage: func(data []byte) {
			c.handleMessage(conn, data)
		},
		OnClose: func(err error) {
			c.handleClose(conn, err)
		},
	})
}

func (c *SubscriptionClient) handleOpen(conn *connection) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.conn != conn || c.state != StateConnecting {
		return
	}

	c.policy.Reset()
	c.state = StateOpen
	conn.log.Infof("connection opened")

	if c.opts.ConnectionParams != nil {
		data, err := protocol.NewConnectionInitMessage(c.opts.ConnectionParams)
		c.sendLocked(protocol.MsgConnectionInit, data, err)
	}

	for _, id := range c.ops.IDs() {
		c.startOperationLocked(id)
	}

	if timeout := c.opts.KeepAliveTimeout; timeout > 0 {
		conn.keepAlive = interval.SetInterval(func(i *interval.Interval) {
			c.checkAlive(conn, i)
		}, timeout)
	}
}

// checkAlive closes the transport when nothing was received during the
// last keep-alive period
func (c *SubscriptionClient) checkAlive(conn *connection, i *interval.Interval) {
	c.mx.Lock()
	if c.conn != conn {
		c.mx.Unlock()
		i.Clear()
		return
	}

	if conn.alive {
		conn.alive = false
		c.mx.Unlock()
		return
	}
	c.mx.Unlock()

	i.Clear()
	conn.log.Warnf("no message received within %s, closing connection", c.opts.KeepAliveTimeout)
	conn.t.Close()
}

func (c *SubscriptionClient) handleClose(conn *connection, err error) {
	c.mx.Lock()

	if c.conn != conn {
		c.mx.Unlock()
		return
	}

	c.conn = nil
	interval.ClearInterval(conn.keepAlive)
	c.ops.ResetAll()

	log := conn.log
	if err != nil {
		log = log.WithError(err)
	}

	if c.state == StateClosingByCaller {
		log.Infof("connection closed")
		c.finishLocked(nil)
		c.mx.Unlock()
		return
	}

	c.state = StateClosingUnexpected

	if delay, ok := c.policy.Next(); ok {
		log.Warnf("connection lost, reconnecting in %s (attempt %d of %d)", delay, c.policy.Attempts(), c.policy.MaxAttempts())
		c.metrics.ReconnectScheduled()
		c.reconnectTimer = interval.SetTimeout(c.reconnect, delay)
		c.mx.Unlock()
		return
	}

	log.Errorf("connection lost after %d reconnection attempts, giving up", c.policy.MaxAttempts())
	ops := c.ops.RemoveAll()
	c.metrics.SetActiveOperations(0)
	c.finishLocked(ErrReconnectAttemptsExhausted)
	c.mx.Unlock()

	for _, op := range ops {
		if op.Observer.Error != nil {
			op.Observer.Error(ErrReconnectAttemptsExhausted)
		}
	}
}

// reconnect runs from the backoff timer. A caller close while the timer was
// pending leaves the state changed and makes this a no-op.
func (c *SubscriptionClient) reconnect() {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state != StateClosingUnexpected {
		return
	}

	c.reconnectTimer = nil
	c.connectLocked()
}

// finishLocked moves the client to its terminal state
func (c *SubscriptionClient) finishLocked(err error) {
	if c.state == StateClosed {
		return
	}

	c.state = StateClosed
	c.err = err

	interval.ClearTimeout(c.reconnectTimer)
	interval.ClearTimeout(c.closeTimer)
	c.reconnectTimer = nil
	c.closeTimer = nil

	close(c.done)
}

// startOperationLocked sends start for a registered operation once per
// connection
func (c *SubscriptionClient) startOperationLocked(id string) {
	if c.state != StateOpen || c.conn == nil {
		return
	}

	op, ok := c.ops.Get(id)
	if !ok || op.Started || !c.ops.MarkStarted(id) {
		return
	}

	c.conn.log.
		WithField("operationId", id).
		WithField("operationName", operationName(op.Params)).
		Debugf("starting operation")

	data, err := protocol.NewStartMessage(id, op.Params)
	c.sendLocked(protocol.MsgStart, data, err)
}

// stopLocked sends stop for an operation whose start reached the current
// connection
func (c *SubscriptionClient) stopLocked(op registry.Operation) {
	if !op.Started {
		return
	}

	data, err := protocol.NewStopMessage(op.ID)
	c.sendLocked(protocol.MsgStop, data, err)
}

// sendLocked hands an encoded envelope to the current transport. Without a
// transport the message is discarded.
func (c *SubscriptionClient) sendLocked(t protocol.MessageType, data []byte, err error) {
	if err != nil {
		c.log.WithError(err).Errorf("failed to encode %s message", t)
		return
	}

	if c.conn == nil {
		return
	}

	if err := c.conn.t.Send(data); err != nil {
		c.conn.log.WithError(err).WithField("type", t).Warnf("failed to send message")
		return
	}

	c.metrics.MessageSent(string(t))
}

// nextIDLocked returns the id for a new operation
func (c *SubscriptionClient) nextIDLocked(params protocol.Params) string {
	if c.opts.GenID != nil {
		if id := c.opts.GenID(params); id != "" {
			return id
		}
	}

	// skip counter values already taken by generated ids
	for {
		c.nextID++
		id := strconv.FormatUint(c.nextID, 10)
		if !c.ops.Has(id) {
			return id
		}
	}
}
