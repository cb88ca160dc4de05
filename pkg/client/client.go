// Package client composes the full bot client: the HTTP API layer, the event
// dispatcher, the session manager, and the buffered context engine, wired
// from one configuration.
package client

import (
	"context"
	"fmt"

	"github.com/loomworks/loom-go/pkg/bus"
	"github.com/loomworks/loom-go/pkg/config"
	"github.com/loomworks/loom-go/pkg/conversation"
	"github.com/loomworks/loom-go/pkg/event"
	"github.com/loomworks/loom-go/pkg/logging"
	"github.com/loomworks/loom-go/pkg/platform"
	"github.com/loomworks/loom-go/pkg/rpc"
	"github.com/loomworks/loom-go/pkg/session"
	"github.com/loomworks/loom-go/pkg/transport"
)

// Option customizes a Client at construction time.
type Option func(*Client)

// WithDialer overrides the websocket dialer. The default is the gorilla
// implementation; transport.CoderDialer is the drop-in alternative.
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithBus attaches a message bus; every dispatched event is mirrored to
// "<prefix>.<event type>". The client takes ownership and closes the bus on
// Close.
func WithBus(b bus.MessageBus, prefix string) Option {
	return func(c *Client) {
		c.bus = b
		c.busPrefix = prefix
	}
}

// WithLogger overrides the root logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client is a connected bot instance. Multiple clients coexist in a process;
// nothing is shared between them.
type Client struct {
	cfg        *config.Config
	log        *logging.Logger
	api        *rpc.Client
	dialer     transport.Dialer
	dispatcher *event.Dispatcher
	session    *session.Manager
	engine     *conversation.Engine

	bus       bus.MessageBus
	busPrefix string
	bridge    *busBridge
}

// New builds a Client from configuration. The client is not connected until
// Connect.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	level := logging.ParseLevel(cfg.Log.Level)
	if c.log == nil {
		c.log = logging.New("client", level)
	}
	if c.dialer == nil {
		c.dialer = &transport.GorillaDialer{}
	}

	api, err := rpc.New(cfg.Platform.URL, cfg.Platform.Credential)
	if err != nil {
		return nil, err
	}
	c.api = api

	c.dispatcher = event.NewDispatcher(logging.New("dispatcher", level))

	engine, err := conversation.NewEngine(conversation.Config{
		BotID:           cfg.Bot.ID,
		BotName:         cfg.Bot.Name,
		Aliases:         cfg.Bot.Aliases,
		ExtraPatterns:   cfg.Bot.ExtraPatterns,
		MaxBufferSize:   cfg.Engine.MaxBufferSize,
		TriggerOnInvite: cfg.Engine.TriggerOnInvite,
	}, api, c.dispatcher, logging.New("conversation", level))
	if err != nil {
		return nil, fmt.Errorf("context engine: %w", err)
	}
	c.engine = engine

	c.session = session.NewManager(session.Config{
		Reconnect:           cfg.Session.Reconnect,
		InitialDelay:        cfg.Session.InitialDelay,
		MaxDelay:            cfg.Session.MaxDelay,
		BackoffFactor:       cfg.Session.BackoffFactor,
		MaxAttempts:         cfg.Session.MaxAttempts,
		MaxImmediateRetries: cfg.Session.MaxImmediateRetries,
		DialTimeout:         cfg.Session.DialTimeout,
		PingInterval:        cfg.Session.PingInterval,
	}, api, c.dialer, c.dispatcher, logging.New("session", level))

	if c.bus != nil {
		if c.busPrefix == "" {
			c.busPrefix = config.DefaultBusSubjectPrefix
		}
		c.bridge = newBusBridge(c.bus, c.busPrefix, logging.New("bridge", level))
		c.dispatcher.On(platform.EventWildcard, c.bridge.forward)
	}

	return c, nil
}

// Connect starts the context engine and opens the realtime session.
func (c *Client) Connect(ctx context.Context) error {
	c.engine.Start()
	return c.session.Connect(ctx)
}

// Disconnect closes the session intentionally. Handlers, buffers and
// watermarks survive for a later Connect.
func (c *Client) Disconnect() {
	c.session.Disconnect()
}

// Close tears the client down: session, engine, and any attached bus.
func (c *Client) Close() error {
	c.session.Disconnect()
	c.engine.Stop()
	if c.bridge != nil {
		c.dispatcher.Off(platform.EventWildcard, c.bridge.forward)
	}
	if c.bus != nil {
		return c.bus.Close()
	}
	return nil
}

// On subscribes handler to eventType; platform.EventWildcard receives every
// event.
func (c *Client) On(eventType string, handler event.Handler) {
	c.dispatcher.On(eventType, handler)
}

// Off removes one registration of handler for eventType.
func (c *Client) Off(eventType string, handler event.Handler) {
	c.dispatcher.Off(eventType, handler)
}

// OnTrigger registers a handler for context engine deliveries.
func (c *Client) OnTrigger(h conversation.TriggerHandler) {
	c.engine.RegisterTriggerHandler(h)
}

// Ping sends a liveness probe over the live socket, if any.
func (c *Client) Ping(ctx context.Context) error {
	return c.session.Ping(ctx)
}

// Status reports the session state.
func (c *Client) Status() session.Status {
	return c.session.Status()
}

// Engine exposes the buffered context engine for prompt serialization and
// manual flushes.
func (c *Client) Engine() *conversation.Engine {
	return c.engine
}

// API exposes the HTTP layer for direct metadata fetches.
func (c *Client) API() *rpc.Client {
	return c.api
}
