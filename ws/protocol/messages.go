package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bhoriuchi/graphql-ws-client/utils"
	"github.com/graphql-go/graphql/gqlerrors"
)

var (
	ErrMissingType = errors.New("message is missing the 'type' property")
)

// OperationMessage represents a GraphQL WebSocket message. The payload is
// kept raw until the dispatcher knows which shape to decode it into.
type OperationMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (msg OperationMessage) String() string {
	s, _ := json.Marshal(msg)
	if s != nil {
		return string(s)
	}
	return "<invalid>"
}

// HasPayload returns true if the payload field exists and is not null
func (msg OperationMessage) HasPayload() bool {
	return len(msg.Payload) > 0 && string(msg.Payload) != "null"
}

// outgoingMessage is the encoded form of a client envelope
type outgoingMessage struct {
	ID      string      `json:"id,omitempty"`
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Encode serializes an envelope into a single text message
func Encode(id string, t MessageType, payload interface{}) ([]byte, error) {
	if t == "" {
		return nil, ErrMissingType
	}

	b, err := json.Marshal(outgoingMessage{
		ID:      id,
		Type:    t,
		Payload: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %q message: %w", t, err)
	}

	return b, nil
}

// NewStartMessage encodes a start envelope for an operation
func NewStartMessage(id string, params Params) ([]byte, error) {
	return Encode(id, MsgStart, params)
}

// NewStopMessage encodes a stop envelope for an operation
func NewStopMessage(id string) ([]byte, error) {
	return Encode(id, MsgStop, nil)
}

// NewConnectionInitMessage encodes a connection_init envelope
func NewConnectionInitMessage(payload map[string]interface{}) ([]byte, error) {
	if payload == nil {
		return Encode("", MsgConnectionInit, nil)
	}
	return Encode("", MsgConnectionInit, payload)
}

// NewConnectionTerminateMessage encodes a connection_terminate envelope
func NewConnectionTerminateMessage() ([]byte, error) {
	return Encode("", MsgConnectionTerminate, nil)
}

// Decode parses a single inbound text message
func Decode(data []byte) (*OperationMessage, error) {
	msg := &OperationMessage{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	if msg.Type == "" {
		return nil, ErrMissingType
	}

	return msg, nil
}

// ExecutionResult result of an execution delivered by a data message
type ExecutionResult struct {
	Errors     gqlerrors.FormattedErrors `json:"errors,omitempty"`
	Data       interface{}               `json:"data,omitempty"`
	Extensions map[string]interface{}    `json:"extensions,omitempty"`
}

// DecodeResult decodes the payload of a data message
func (msg OperationMessage) DecodeResult() (*ExecutionResult, error) {
	result := &ExecutionResult{}
	if !msg.HasPayload() {
		return result, nil
	}

	if err := json.Unmarshal(msg.Payload, result); err != nil {
		return nil, fmt.Errorf("decode %q payload: %w", msg.Type, err)
	}

	return result, nil
}

// HasErrors returns true if errors are present
func (r *ExecutionResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// FirstError returns the first error
func (r *ExecutionResult) FirstError() *gqlerrors.FormattedError {
	if r.HasErrors() {
		first := r.Errors[0]
		return &first
	}
	return nil
}

// Decode decodes the result data into the provided interface
func (r *ExecutionResult) Decode(out interface{}) error {
	if r.Data == nil {
		return fmt.Errorf("no data to decode")
	}

	return utils.ReMarshal(r.Data, out)
}
