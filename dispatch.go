package client

import (
	"github.com/bhoriuchi/graphql-ws-client/utils"
	"github.com/bhoriuchi/graphql-ws-client/ws/protocol"
)

// handleMessage routes an inbound envelope. Observer callbacks run after
// the lock is released, on the transport's read goroutine.
func (c *SubscriptionClient) handleMessage(conn *connection, data []byte) {
	c.mx.Lock()
	if c.conn != conn {
		c.mx.Unlock()
		return
	}

	conn.alive = true
	notify := c.dispatchLocked(conn, data)
	c.mx.Unlock()

	if notify != nil {
		notify()
	}
}

func (c *SubscriptionClient) dispatchLocked(conn *connection, data []byte) func() {
	msg, err := protocol.Decode(data)
	if err != nil {
		conn.log.WithError(err).Debugf("dropping undecodable message")
		c.metrics.MessageDropped("decode")
		return nil
	}

	c.metrics.MessageReceived(string(msg.Type))
	log := conn.log.WithField("type", msg.Type)

	switch msg.Type {
	case protocol.MsgKeepAlive:
		log.Tracef("keep-alive received")
		return nil

	case protocol.MsgConnectionAck:
		log.Debugf("connection acknowledged")
		if msg.ID != "" {
			c.ops.MarkAcknowledged(msg.ID)
		}
		return nil
	}

	if !msg.Type.Inbound() {
		log.Debugf("dropping message of unknown type")
		c.metrics.MessageDropped("unknown_type")
		return nil
	}

	op, ok := c.ops.Get(msg.ID)
	if !ok {
		log.WithField("operationId", msg.ID).Debugf("dropping message for unknown operation")
		c.metrics.MessageDropped("unknown_id")
		return nil
	}
	log = log.WithField("operationId", op.ID)

	switch msg.Type {
	case protocol.MsgStartAck:
		c.ops.MarkAcknowledged(op.ID)
		return nil

	case protocol.MsgData:
		result, err := msg.DecodeResult()
		if err != nil {
			log.WithError(err).Debugf("dropping undecodable result")
			c.metrics.MessageDropped("decode")
			return nil
		}

		if op.Observer.Next == nil {
			return nil
		}
		return func() {
			op.Observer.Next(result)
		}

	case protocol.MsgError, protocol.MsgConnectionError:
		err := utils.FirstError(msg.Payload)
		log.WithError(err).Debugf("operation error")

		if op.Observer.Error == nil {
			return nil
		}
		return func() {
			op.Observer.Error(err)
		}

	case protocol.MsgComplete:
		c.ops.Remove(op.ID)
		c.metrics.SetActiveOperations(c.ops.Count())
		log.Debugf("operation completed")

		if op.Observer.Complete == nil {
			return nil
		}
		return op.Observer.Complete
	}

	return nil
}
