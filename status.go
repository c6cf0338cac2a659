package client

// State is the connection manager state
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosingByCaller
	StateClosingUnexpected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosingByCaller:
		return "closing"
	case StateClosingUnexpected:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Status is the connectivity of the underlying transport
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosing    Status = "closing"
	StatusClosed     Status = "closed"
)

// Status returns the connectivity of the current transport
func (c *SubscriptionClient) Status() Status {
	c.mx.Lock()
	defer c.mx.Unlock()

	switch c.state {
	case StateConnecting:
		return StatusConnecting
	case StateOpen:
		return StatusOpen
	case StateClosingByCaller:
		if c.conn != nil {
			return StatusClosing
		}
	}

	return StatusClosed
}

// State returns the connection manager state
func (c *SubscriptionClient) State() State {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.state
}
