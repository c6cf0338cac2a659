package options

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bhoriuchi/graphql-ws-client/logger"
	"github.com/bhoriuchi/graphql-ws-client/ws/protocol"
	"github.com/bhoriuchi/graphql-ws-client/ws/transport"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultReconnectBaseDelay = 500 * time.Millisecond
	DefaultReconnectFactor    = 2
	DefaultCloseGracePeriod   = time.Second
	DefaultHandshakeTimeout   = transport.DefaultHandshakeTimeout
	DefaultMetricsNamespace   = "graphql_ws_client"
)

// GenIDFunc produces an operation id for the given params. An empty string
// falls back to the client's counter.
type GenIDFunc func(params protocol.Params) string

type Option func(opts *Options)

type Options struct {
	ReconnectionAttempts int                    `yaml:"reconnectionAttempts"`
	ReconnectBaseDelay   time.Duration          `yaml:"reconnectBaseDelay"`
	ReconnectMaxDelay    time.Duration          `yaml:"reconnectMaxDelay"`
	ReconnectJitter      float64                `yaml:"reconnectJitter"`
	ReconnectFactor      float64                `yaml:"reconnectFactor"`
	CloseGracePeriod     time.Duration          `yaml:"closeGracePeriod"`
	KeepAliveTimeout     time.Duration          `yaml:"keepAliveTimeout"`
	HandshakeTimeout     time.Duration          `yaml:"handshakeTimeout"`
	ConnectionParams     map[string]interface{} `yaml:"connectionParams"`
	Headers              http.Header            `yaml:"headers"`
	LogLevel             string                 `yaml:"logLevel"`
	MetricsNamespace     string                 `yaml:"metricsNamespace"`

	GenID      GenIDFunc             `yaml:"-"`
	LogFunc    logger.LogFunc        `yaml:"-"`
	Dialer     transport.Dialer      `yaml:"-"`
	Registerer prometheus.Registerer `yaml:"-"`
}

// New builds options from the defaults and the given option funcs
func New(opts ...Option) (*Options, error) {
	o := &Options{}
	o.applyDefaults()

	for _, opt := range opts {
		opt(o)
	}
	o.applyDefaults()

	if err := o.Validate(); err != nil {
		return nil, err
	}

	return o, nil
}

func (o *Options) applyDefaults() {
	if o.ReconnectBaseDelay == 0 {
		o.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if o.ReconnectFactor == 0 {
		o.ReconnectFactor = DefaultReconnectFactor
	}
	if o.CloseGracePeriod == 0 {
		o.CloseGracePeriod = DefaultCloseGracePeriod
	}
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.MetricsNamespace == "" {
		o.MetricsNamespace = DefaultMetricsNamespace
	}
}

// Validate checks option values that have no usable fallback
func (o *Options) Validate() error {
	if o.ReconnectionAttempts < 0 {
		return fmt.Errorf("reconnectionAttempts must not be negative, got %d", o.ReconnectionAttempts)
	}
	if o.ReconnectBaseDelay < 0 {
		return fmt.Errorf("reconnectBaseDelay must not be negative, got %s", o.ReconnectBaseDelay)
	}
	if o.ReconnectMaxDelay < 0 {
		return fmt.Errorf("reconnectMaxDelay must not be negative, got %s", o.ReconnectMaxDelay)
	}
	if o.ReconnectJitter < 0 || o.ReconnectJitter > 1 {
		return fmt.Errorf("reconnectJitter must be between 0 and 1, got %v", o.ReconnectJitter)
	}
	if o.ReconnectFactor <= 1 {
		return fmt.Errorf("reconnectFactor must be greater than 1, got %v", o.ReconnectFactor)
	}
	if o.CloseGracePeriod < 0 {
		return fmt.Errorf("closeGracePeriod must not be negative, got %s", o.CloseGracePeriod)
	}
	if o.KeepAliveTimeout < 0 {
		return fmt.Errorf("keepAliveTimeout must not be negative, got %s", o.KeepAliveTimeout)
	}
	if o.LogLevel != "" {
		if _, err := logger.ParseLevel(o.LogLevel); err != nil {
			return fmt.Errorf("logLevel: %w", err)
		}
	}
	return nil
}

// ResolveLogFunc returns the configured log func. Without one, a configured
// log level selects the simple stdout logger, otherwise logging is off.
func (o *Options) ResolveLogFunc() logger.LogFunc {
	if o.LogFunc != nil {
		return o.LogFunc
	}

	if o.LogLevel != "" {
		if level, err := logger.ParseLevel(o.LogLevel); err == nil {
			return logger.NewSimpleLogFunc(level)
		}
	}

	return logger.NoopLogFunc
}

// UUIDGenID generates random uuid operation ids
func UUIDGenID(params protocol.Params) string {
	return uuid.NewString()
}

// WithConfig replaces the options with a loaded config. Options applied
// after it still take precedence.
func WithConfig(cfg *Options) Option {
	return func(opts *Options) {
		if cfg != nil {
			*opts = *cfg
		}
	}
}

func WithReconnectionAttempts(n int) Option {
	return func(opts *Options) {
		opts.ReconnectionAttempts = n
	}
}

func WithReconnectBaseDelay(d time.Duration) Option {
	return func(opts *Options) {
		opts.ReconnectBaseDelay = d
	}
}

// WithReconnectMaxDelay caps the reconnect delay, zero leaves it uncapped
func WithReconnectMaxDelay(d time.Duration) Option {
	return func(opts *Options) {
		opts.ReconnectMaxDelay = d
	}
}

// WithReconnectJitter randomizes each reconnect delay by up to the given
// fraction
func WithReconnectJitter(jitter float64) Option {
	return func(opts *Options) {
		opts.ReconnectJitter = jitter
	}
}

func WithReconnectFactor(factor float64) Option {
	return func(opts *Options) {
		opts.ReconnectFactor = factor
	}
}

func WithCloseGracePeriod(d time.Duration) Option {
	return func(opts *Options) {
		opts.CloseGracePeriod = d
	}
}

func WithKeepAliveTimeout(d time.Duration) Option {
	return func(opts *Options) {
		opts.KeepAliveTimeout = d
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(opts *Options) {
		opts.HandshakeTimeout = d
	}
}

// WithConnectionParams enables the connection_init handshake with the given
// payload. A nil map still sends connection_init, without a payload.
func WithConnectionParams(params map[string]interface{}) Option {
	return func(opts *Options) {
		if params == nil {
			params = map[string]interface{}{}
		}
		opts.ConnectionParams = params
	}
}

func WithHeaders(header http.Header) Option {
	return func(opts *Options) {
		opts.Headers = header
	}
}

func WithGenID(f GenIDFunc) Option {
	return func(opts *Options) {
		opts.GenID = f
	}
}

func WithUUIDGenID() Option {
	return WithGenID(UUIDGenID)
}

func WithLogFunc(l logger.LogFunc) Option {
	return func(opts *Options) {
		opts.LogFunc = l
	}
}

func WithLogLevel(level string) Option {
	return func(opts *Options) {
		opts.LogLevel = level
	}
}

func WithDialer(d transport.Dialer) Option {
	return func(opts *Options) {
		opts.Dialer = d
	}
}

// WithMetrics registers the client metrics with reg
func WithMetrics(reg prometheus.Registerer) Option {
	return func(opts *Options) {
		opts.Registerer = reg
	}
}

func WithMetricsNamespace(namespace string) Option {
	return func(opts *Options) {
		opts.MetricsNamespace = namespace
	}
}
