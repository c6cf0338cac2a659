package client

import (
	"github.com/bhoriuchi/graphql-ws-client/utils"
	"github.com/bhoriuchi/graphql-ws-client/ws/protocol"
	"github.com/bhoriuchi/graphql-ws-client/ws/registry"
)

type (
	Params          = protocol.Params
	ExecutionResult = protocol.ExecutionResult
	Observer        = registry.Observer
)

// Observable is a request that can be subscribed to any number of times.
// Each subscription is a separate operation on the connection.
type Observable struct {
	client *SubscriptionClient
	params protocol.Params
}

// Subscription is the handle of a single operation
type Subscription struct {
	client *SubscriptionClient
	id     string
}

// Request returns an observable for the given operation params
func (c *SubscriptionClient) Request(params Params) *Observable {
	return &Observable{
		client: c,
		params: params,
	}
}

// Subscribe registers a new operation and starts it as soon as the
// connection is open
func (o *Observable) Subscribe(observer Observer) *Subscription {
	return o.client.subscribe(o.params, observer)
}

// SubscribeFunc subscribes with plain callbacks, any of which may be nil
func (o *Observable) SubscribeFunc(next func(result *ExecutionResult), onError func(err error), onComplete func()) *Subscription {
	return o.Subscribe(Observer{
		Next:     next,
		Error:    onError,
		Complete: onComplete,
	})
}

// ID returns the operation id, empty for a subscription that was never
// registered
func (s *Subscription) ID() string {
	return s.id
}

// Unsubscribe removes the operation and stops it on the server
func (s *Subscription) Unsubscribe() {
	if s.client == nil {
		return
	}
	s.client.Unsubscribe(s.id)
}

// Subscribe is shorthand for Request(params).Subscribe(observer)
func (c *SubscriptionClient) Subscribe(params Params, observer Observer) *Subscription {
	return c.subscribe(params, observer)
}

// Unsubscribe removes an operation. Unknown ids are ignored.
func (c *SubscriptionClient) Unsubscribe(id string) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.unsubscribeLocked(id)
}

// UnsubscribeAll removes every registered operation
func (c *SubscriptionClient) UnsubscribeAll() {
	c.mx.Lock()
	defer c.mx.Unlock()

	for _, id := range c.ops.IDs() {
		c.unsubscribeLocked(id)
	}
}

func (c *SubscriptionClient) unsubscribeLocked(id string) {
	op, ok := c.ops.Remove(id)
	if !ok {
		return
	}

	c.metrics.SetActiveOperations(c.ops.Count())
	c.log.WithField("operationId", id).Debugf("unsubscribed")
	c.stopLocked(op)
}

func (c *SubscriptionClient) subscribe(params protocol.Params, observer Observer) *Subscription {
	c.mx.Lock()

	if c.state == StateClosingByCaller || c.state == StateClosed {
		c.mx.Unlock()
		c.log.Warnf("subscribe called on a closed client, ignoring %q", operationName(params))
		return &Subscription{}
	}

	id := c.nextIDLocked(params)
	log := c.log.
		WithField("operationId", id).
		WithField("operationName", operationName(params))

	if err := c.ops.Add(registry.Operation{
		ID:       id,
		Params:   params,
		Observer: observer,
	}); err != nil {
		c.mx.Unlock()
		log.WithError(err).Warnf("failed to register operation")
		if observer.Error != nil {
			observer.Error(err)
		}
		return &Subscription{}
	}

	c.metrics.SetActiveOperations(c.ops.Count())
	log.Debugf("subscribed")
	c.startOperationLocked(id)
	c.mx.Unlock()

	return &Subscription{
		client: c,
		id:     id,
	}
}

func operationName(params protocol.Params) string {
	return utils.OperationName(params.GetQuery(), params.GetOperationName())
}
