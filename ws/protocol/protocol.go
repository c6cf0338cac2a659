package protocol

import (
	"time"
)

// MessageType is a message type
type MessageType string

const (
	// Subprotocol - https://github.com/apollographql/subscriptions-transport-ws/blob/master/PROTOCOL.md
	Subprotocol = "graphql-ws"

	// Client -> Server
	MsgConnectionInit      MessageType = "connection_init"
	MsgConnectionTerminate MessageType = "connection_terminate"
	MsgStart               MessageType = "start"
	MsgStop                MessageType = "stop"

	// Server -> Client
	MsgConnectionAck   MessageType = "connection_ack"
	MsgConnectionError MessageType = "connection_error"
	MsgKeepAlive       MessageType = "ka"
	MsgStartAck        MessageType = "start_ack"
	MsgData            MessageType = "data"
	MsgError           MessageType = "error"
	MsgComplete        MessageType = "complete"

	// Thresholds
	WriteTimeout = 10 * time.Second
)

// Inbound returns true for message types the client expects from the server
func (t MessageType) Inbound() bool {
	switch t {
	case MsgConnectionAck, MsgConnectionError, MsgKeepAlive, MsgStartAck,
		MsgData, MsgError, MsgComplete:
		return true
	}
	return false
}
