package client

import (
	"errors"
)

var (
	ErrNoURL                      = errors.New("a websocket url is required")
	ErrReconnectAttemptsExhausted = errors.New("reconnection attempts exhausted")
)
