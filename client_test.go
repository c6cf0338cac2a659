package client_test

import (
	"sync"
	"testing"
	"time"

	client "github.com/bhoriuchi/graphql-ws-client"
	"github.com/bhoriuchi/graphql-ws-client/logger"
	"github.com/bhoriuchi/graphql-ws-client/options"
	"github.com/bhoriuchi/graphql-ws-client/ws/protocol"
	"github.com/bhoriuchi/graphql-ws-client/ws/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURL = "ws://localhost:4000/graphql"

func newTestClient(t *testing.T, opts ...options.Option) (*client.SubscriptionClient, *fakeDialer) {
	t.Helper()

	d := newFakeDialer()
	opts = append([]options.Option{
		options.WithDialer(d),
		options.WithCloseGracePeriod(10 * time.Millisecond),
	}, opts...)

	c, err := client.New(testURL, opts...)
	require.NoError(t, err)
	return c, d
}

func TestNew(t *testing.T) {
	_, err := client.New("")
	assert.ErrorIs(t, err, client.ErrNoURL)

	_, err = client.New(testURL, options.WithReconnectionAttempts(-1))
	assert.Error(t, err)

	c, d := newTestClient(t)
	ft := d.next(t)

	assert.Equal(t, testURL, ft.url)
	assert.Equal(t, "graphql-ws", ft.subprotocol)
	assert.Equal(t, client.StateConnecting, c.State())
	assert.Equal(t, client.StatusConnecting, c.Status())
}

func TestSubscribeStartsOnOpen(t *testing.T) {
	c, d := newTestClient(t)
	ft := d.next(t)

	rec := &recorder{}
	sub := c.Request(client.Params{Query: "{a}"}).Subscribe(rec.observer())
	assert.Equal(t, "1", sub.ID())
	assert.Empty(t, ft.Sent())

	ft.Open()
	assert.Equal(t, client.StatusOpen, c.Status())

	sent := ft.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.MsgStart, sent[0].Type)
	assert.Equal(t, "1", sent[0].ID)
	assert.JSONEq(t, `{"query":"{a}"}`, string(sent[0].Payload))
}

func TestSubscribeWhileOpenStartsImmediately(t *testing.T) {
	c, d := newTestClient(t)
	ft := d.next(t)
	ft.Open()

	c.Request(client.Params{
		Query:     "subscription OnTick($n: Int) { tick(n: $n) }",
		Variables: map[string]interface{}{"n": 2},
		Extra:     map[string]interface{}{"persisted": true},
	}).SubscribeFunc(nil, nil, nil)

	sent := ft.Sent()
	require.Len(t, sent, 1)
	assert.JSONEq(t,
		`{"query":"subscription OnTick($n: Int) { tick(n: $n) }","variables":{"n":2},"persisted":true}`,
		string(sent[0].Payload),
	)
}

func TestDataIsRoutedByID(t *testing.T) {
	c, d := newTestClient(t)
	ft := d.next(t)
	ft.Open()

	first, second := &recorder{}, &recorder{}
	c.Request(client.Params{Query: "{a}"}).Subscribe(first.observer())
	c.Request(client.Params{Query: "{b}"}).Subscribe(second.observer())

	ft.Receive(`{"id":"2","type":"data","payload":{"data":{"b":2}}}`)

	assert.Empty(t, first.Results())
	require.Len(t, second.Results(), 1)

	result := second.Results()[0]
	assert.False(t, result.HasErrors())
	assert.Equal(t, map[string]interface{}{"b": float64(2)}, result.Data)
}

func TestUnroutableMessagesAreDropped(t *testing.T) {
	c, d := newTestClient(t)
	ft := d.next(t)
	ft.Open()

	rec := &recorder{}
	c.Request(client.Params{Query: "{a}"}).Subscribe(rec.observer())

	ft.Receive(`not json`)
	ft.Receive(`{"id":"1"}`)
	ft.Receive(`{"id":"99","type":"data","payload":{"data":{"a":1}}}`)
	ft.Receive(`{"type":"data","payload":{"data":{"a":1}}}`)
	ft.Receive(`{"id":"1","type":"mystery"}`)
	ft.Receive(`{"id":"1","type":"data","payload":"garbage"}`)

	assert.Empty(t, rec.Results())
	assert.Empty(t, rec.Errors())
	assert.Equal(t, 0, rec.Completed())
	assert.Equal(t, 1, c.Operations())
	assert.Equal(t, client.StateOpen, c.State())
}

func TestErrorKeepsOperationRegistered(t *testing.T) {
	c, d := newTestClient(t)
	ft := d.next(t)
	ft.Open()

	rec := &recorder{}
	c.Request(client.Params{Query: "{a}"}).Subscribe(rec.observer())

	ft.Receive(`{"id":"1","type":"error","payload":{"errors":[{"message":"boom"},{"message":"other"}]}}`)
	ft.Receive(`{"id":"1","type":"connection_error","payload":{"message":"denied"}}`)

	errs := rec.Errors()
	require.Len(t, errs, 2)
	assert.EqualError(t, errs[0], "boom")
	assert.EqualError(t, errs[1], "denied")
	assert.Equal(t, 1, c.Operations())

	ft.Receive(`{"id":"1","type":"data","payload":{"data":{"a":1}}}`)
	assert.Len(t, rec.Results(), 1)
}

func TestCompleteRemovesOperation(t *testing.T) {
	c, d := newTestClient(t)
	ft := d.next(t)
	ft.Open()

	rec := &recorder{}
	sub := c.Request(client.Params{Query: "{a}"}).Subscribe(rec.observer())

	ft.Receive(`{"id":"1","type":"complete"}`)
	assert.Equal(t, 1, rec.Completed())
	assert.Equal(t, 0, c.Operations())

	ft.Receive(`{"id":"1","type":"data","payload":{"data":{"a":1}}}`)
	assert.Empty(t, rec.Results())

	sub.Unsubscribe()
	assert.Equal(t, []protocol.MessageType{protocol.MsgStart}, ft.SentTypes())
}

func TestAcknowledgementsAndKeepAlive(t *testing.T) {
	c, d := newTestClient(t)
	ft := d.next(t)
	ft.Open()

	rec := &recorder{}
	c.Request(client.Params{Query: "{a}"}).Subscribe(rec.observer())

	ft.Receive(`{"type":"connection_ack"}`)
	ft.Receive(`{"id":"1","type":"start_ack"}`)
	ft.Receive(`{"type":"ka"}`)

	assert.Empty(t, rec.Results())
	assert.Empty(t, rec.Errors())
	assert.Equal(t, client.StateOpen, c.State())
}

func TestUnsubscribeSendsStop(t *testing.T) {
	c, d := newTestClient(t)
	ft := d.next(t)
	ft.Open()

	sub := c.Request(client.Params{Query: "{a}"}).Subscribe(client.Observer{})
	sub.Unsubscribe()
	sub.Unsubscribe()
	c.Unsubscribe("unknown")

	sent := ft.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, protocol.MsgStop, sent[1].Type)
	assert.Equal(t, "1", sent[1].ID)
	assert.False(t, sent[1].HasPayload())
	assert.Equal(t, 0, c.Operations())
}

func TestSubscribeUnsubscribeBeforeOpen(t *testing.T) {
	c, d := newTestClient(t)
	ft := d.next(t)

	sub := c.Request(client.Params{Query: "{a}"}).Subscribe(client.Observer{})
	sub.Unsubscribe()
	ft.Open()

	assert.Empty(t, ft.Sent())
}

func TestUnsubscribeAll(t *testing.T) {
	c, d := newTestClient(t)
	ft := d.next(t)
	ft.Open()

	c.Request(client.Params{Query: "{a}"}).Subscribe(client.Observer{})
	c.Request(client.Params{Query: "{b}"}).Subscribe(client.Observer{})
	c.UnsubscribeAll()

	assert.Equal(t, []protocol.MessageType{
		protocol.MsgStart,
		protocol.MsgStart,
		protocol.MsgStop,
		protocol.MsgStop,
	}, ft.SentTypes())
	assert.Equal(t, 0, c.Operations())
}

func TestUnsubscribeFromCallback(t *testing.T) {
	c, d := newTestClient(t)
	ft := d.next(t)
	ft.Open()

	var sub *client.Subscription
	sub = c.Request(client.Params{Query: "{a}"}).SubscribeFunc(func(*client.ExecutionResult) {
		sub.Unsubscribe()
	}, nil, nil)

	ft.Receive(`{"id":"1","type":"data","payload":{"data":{"a":1}}}`)

	assert.Equal(t, []protocol.MessageType{protocol.MsgStart, protocol.MsgStop}, ft.SentTypes())
}

func TestReplayOncePerConnection(t *testing.T) {
	c, d := newTestClient(t,
		options.WithReconnectionAttempts(1),
		options.WithReconnectBaseDelay(50*time.Millisecond),
	)
	first := d.next(t)

	rec := &recorder{}
	c.Request(client.Params{Query: "{a}"}).Subscribe(rec.observer())
	c.Request(client.Params{Query: "{b}"}).Subscribe(client.Observer{})

	first.Open()
	assert.Equal(t, []protocol.MessageType{protocol.MsgStart, protocol.MsgStart}, first.SentTypes())

	first.Drop()
	assert.Equal(t, client.StateClosingUnexpected, c.State())
	assert.Equal(t, client.StatusClosed, c.Status())

	second := d.next(t)
	assert.Equal(t, client.StateConnecting, c.State())

	// events from the dropped transport are stale
	first.Receive(`{"id":"1","type":"data","payload":{"data":{"a":1}}}`)
	assert.Empty(t, rec.Results())

	second.Open()
	sent := second.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "1", sent[0].ID)
	assert.Equal(t, "2", sent[1].ID)
	assert.Equal(t, 2, c.Operations())

	second.Receive(`{"id":"1","type":"data","payload":{"data":{"a":1}}}`)
	assert.Len(t, rec.Results(), 1)
}

func TestUnsubscribeWhileReconnecting(t *testing.T) {
	c, d := newTestClient(t,
		options.WithReconnectionAttempts(1),
		options.WithReconnectBaseDelay(5*time.Millisecond),
	)
	first := d.next(t)

	sub := c.Request(client.Params{Query: "{a}"}).Subscribe(client.Observer{})
	c.Request(client.Params{Query: "{b}"}).Subscribe(client.Observer{})
	first.Open()
	first.Drop()

	sub.Unsubscribe()

	second := d.next(t)
	second.Open()

	sent := second.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.MsgStart, sent[0].Type)
	assert.Equal(t, "2", sent[0].ID)
}

func TestReconnectAttemptsAreCapped(t *testing.T) {
	c, d := newTestClient(t,
		options.WithReconnectionAttempts(2),
		options.WithReconnectBaseDelay(5*time.Millisecond),
	)

	rec := &recorder{}
	c.Request(client.Params{Query: "{a}"}).Subscribe(rec.observer())

	d.next(t).Drop()
	d.next(t).Drop()
	d.next(t).Drop()

	waitDone(t, c.Done())
	d.assertNoDial(t, 50*time.Millisecond)

	assert.ErrorIs(t, c.Err(), client.ErrReconnectAttemptsExhausted)
	assert.Equal(t, client.StateClosed, c.State())
	assert.Equal(t, 0, c.Operations())

	errs := rec.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], client.ErrReconnectAttemptsExhausted)
}

func TestAttemptsResetOnOpen(t *testing.T) {
	c, d := newTestClient(t,
		options.WithReconnectionAttempts(1),
		options.WithReconnectBaseDelay(5*time.Millisecond),
	)

	for i := 0; i < 3; i++ {
		ft := d.next(t)
		ft.Open()
		ft.Drop()
	}

	d.next(t)
	assert.Equal(t, client.StateConnecting, c.State())
}

func TestNoReconnectByDefault(t *testing.T) {
	c, d := newTestClient(t)
	ft := d.next(t)
	ft.Open()
	ft.Drop()

	waitDone(t, c.Done())
	d.assertNoDial(t, 20*time.Millisecond)
	assert.ErrorIs(t, c.Err(), client.ErrReconnectAttemptsExhausted)
}

func TestReconnectTimerAfterCloseIsNoop(t *testing.T) {
	c, d := newTestClient(t,
		options.WithReconnectionAttempts(1),
		options.WithReconnectBaseDelay(50*time.Millisecond),
	)
	ft := d.next(t)
	ft.Open()
	ft.Drop()

	require.NoError(t, c.Close())
	waitDone(t, c.Done())

	d.assertNoDial(t, 100*time.Millisecond)
	assert.NoError(t, c.Err())
	assert.Equal(t, client.StateClosed, c.State())
}

func TestCloseStopsAndTerminates(t *testing.T) {
	c, d := newTestClient(t,
		options.WithConnectionParams(map[string]interface{}{"token": "x"}),
		options.WithCloseGracePeriod(200*time.Millisecond),
	)
	ft := d.next(t)
	ft.Open()

	sent := ft.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.MsgConnectionInit, sent[0].Type)
	assert.JSONEq(t, `{"token":"x"}`, string(sent[0].Payload))

	rec := &recorder{}
	c.Request(client.Params{Query: "{a}"}).Subscribe(rec.observer())
	require.NoError(t, c.Close())

	assert.Equal(t, []protocol.MessageType{
		protocol.MsgConnectionInit,
		protocol.MsgStart,
		protocol.MsgStop,
		protocol.MsgConnectionTerminate,
	}, ft.SentTypes())
	assert.Equal(t, client.StatusClosing, c.Status())

	waitDone(t, c.Done())
	assert.True(t, ft.IsClosed())
	assert.NoError(t, c.Err())
	assert.Equal(t, client.StatusClosed, c.Status())
	assert.Equal(t, 0, rec.Completed())

	require.NoError(t, c.Close())

	sub := c.Request(client.Params{Query: "{a}"}).Subscribe(rec.observer())
	assert.Empty(t, sub.ID())
	assert.Equal(t, 0, c.Operations())
	sub.Unsubscribe()
}

func TestCloseWhileConnecting(t *testing.T) {
	c, d := newTestClient(t)
	ft := d.next(t)

	c.Request(client.Params{Query: "{a}"}).Subscribe(client.Observer{})
	require.NoError(t, c.Close())

	assert.True(t, ft.IsClosed())
	waitDone(t, c.Done())
	assert.Empty(t, ft.Sent())
}

func TestGenID(t *testing.T) {
	c, d := newTestClient(t, options.WithGenID(func(params protocol.Params) string {
		if params.Query == "{counter}" {
			return ""
		}
		return "custom"
	}))
	ft := d.next(t)
	ft.Open()

	assert.Equal(t, "custom", c.Request(client.Params{Query: "{a}"}).Subscribe(client.Observer{}).ID())
	assert.Equal(t, "1", c.Request(client.Params{Query: "{counter}"}).Subscribe(client.Observer{}).ID())

	// a duplicate id is rejected and nothing is sent for it
	rec := &recorder{}
	sub := c.Request(client.Params{Query: "{b}"}).Subscribe(rec.observer())
	assert.Empty(t, sub.ID())

	errs := rec.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], registry.ErrOperationExists)
	assert.Equal(t, 2, c.Operations())
	assert.Len(t, ft.Sent(), 2)
}

func TestKeepAliveWatchdog(t *testing.T) {
	_, d := newTestClient(t,
		options.WithKeepAliveTimeout(20*time.Millisecond),
		options.WithReconnectionAttempts(1),
		options.WithReconnectBaseDelay(5*time.Millisecond),
	)
	ft := d.next(t)
	ft.Open()

	require.Eventually(t, ft.IsClosed, time.Second, 5*time.Millisecond)
	d.next(t)
}

func TestLogsOperationName(t *testing.T) {
	var mx sync.Mutex
	var names []interface{}

	c, d := newTestClient(t, options.WithLogFunc(func(payload logger.LogPayload) {
		mx.Lock()
		defer mx.Unlock()
		if name, ok := payload.Fields["operationName"]; ok {
			names = append(names, name)
		}
	}))
	d.next(t).Open()

	c.Request(client.Params{Query: "subscription OnTick { tick }"}).Subscribe(client.Observer{})

	mx.Lock()
	defer mx.Unlock()
	assert.Contains(t, names, "OnTick")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, d := newTestClient(t, options.WithMetrics(reg), options.WithMetricsNamespace("test"))
	ft := d.next(t)
	ft.Open()

	c.Request(client.Params{Query: "{a}"}).Subscribe(client.Observer{})
	ft.Receive(`{"id":"1","type":"data","payload":{"data":{"a":1}}}`)
	ft.Receive(`{"id":"7","type":"data","payload":{"data":{"a":1}}}`)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, float64(1), values["test_client_messages_sent_total"])
	assert.Equal(t, float64(2), values["test_client_messages_received_total"])
	assert.Equal(t, float64(1), values["test_client_messages_dropped_total"])
	assert.Equal(t, float64(1), values["test_client_active_operations"])
}

func TestCounterSkipsGeneratedIDs(t *testing.T) {
	c, d := newTestClient(t, options.WithGenID(func(params protocol.Params) string {
		if params.Query == "{fixed}" {
			return "1"
		}
		return ""
	}))
	d.next(t)

	assert.Equal(t, "1", c.Request(client.Params{Query: "{fixed}"}).Subscribe(client.Observer{}).ID())
	assert.Equal(t, "2", c.Request(client.Params{Query: "{a}"}).Subscribe(client.Observer{}).ID())
	assert.Equal(t, "3", c.Request(client.Params{Query: "{b}"}).Subscribe(client.Observer{}).ID())
}
