package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"workpulse/sync-agent/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler receives decoded push-channel events
type Handler func(models.Event)

// Options configures the channel's endpoint and reconnection policy.
// ClientID distinguishes this agent instance from other tabs/devices of the
// same user on the server side.
type Options struct {
	URL         string
	ClientID    string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	DialTimeout time.Duration
}

// TerminalError is surfaced after the reconnection attempt budget is
// exhausted. The channel stops retrying silently at that point.
type TerminalError struct {
	Attempts int
	Err      error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("connection failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

// Channel is a persistent, authenticated, auto-reconnecting connection to the
// push endpoint. One logical connection exists per authenticated session;
// Disconnect releases every handler registered through this instance so a
// previous user's handlers can never fire for a new session.
//
// Handlers run on a dedicated dispatch goroutine, not the read goroutine, so
// a handler may itself call Disconnect (an authorization failure during a
// post-reconnect refresh does exactly that) and slow handlers do not stall
// reads.
type Channel struct {
	opts   Options
	dialer *websocket.Dialer
	logger *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	token     string
	handlers  map[models.EventName]map[int]Handler
	nextID    int
	connected bool
	stopChan  chan struct{}
	events    chan models.Event
	onFailure func(error)

	writeMu sync.Mutex
	readWG  sync.WaitGroup
}

// NewChannel creates a new push channel
func NewChannel(opts Options, logger *zap.Logger) *Channel {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 5 * time.Second
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	return &Channel{
		opts: opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.DialTimeout,
		},
		logger:   logger,
		handlers: make(map[models.EventName]map[int]Handler),
	}
}

// OnConnectionFailed registers the terminal failure callback, invoked once
// after the reconnection budget is exhausted
func (c *Channel) OnConnectionFailed(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFailure = fn
}

// Connect establishes the connection using the bearer credential. Idempotent
// if already connected.
func (c *Channel) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.token = token
	c.stopChan = make(chan struct{})
	c.events = make(chan models.Event, 32)
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	events := c.events
	c.mu.Unlock()

	c.logger.Info("Push channel connected", zap.String("url", c.opts.URL))

	c.readWG.Add(1)
	go c.readLoop()
	go c.dispatchLoop(events)

	return nil
}

// Disconnect tears down the connection and clears every registered handler.
// Safe to call from a handler: only the read goroutine is waited on, and the
// dispatch goroutine drains itself once its event channel closes.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if !c.connected {
		c.handlers = make(map[models.EventName]map[int]Handler)
		c.mu.Unlock()
		return
	}
	c.connected = false
	close(c.stopChan)
	conn := c.conn
	c.conn = nil
	events := c.events
	c.events = nil
	c.handlers = make(map[models.EventName]map[int]Handler)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.readWG.Wait()
	close(events)

	c.logger.Info("Push channel disconnected")
}

// IsConnected reports whether the channel currently holds a live connection
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.conn != nil
}

// On registers a handler for an event name and returns a registration id
// usable with Off
func (c *Channel) On(name models.EventName, h Handler) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers[name] == nil {
		c.handlers[name] = make(map[int]Handler)
	}
	c.nextID++
	id := c.nextID
	c.handlers[name][id] = h
	return id
}

// Off deregisters handlers for an event name. With no ids, every handler for
// that name is removed.
func (c *Channel) Off(name models.EventName, ids ...int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(ids) == 0 {
		delete(c.handlers, name)
		return
	}
	for _, id := range ids {
		delete(c.handlers[name], id)
	}
}

// Emit sends a client-to-server message
func (c *Channel) Emit(name models.EventName, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("cannot emit %s: not connected", name)
	}

	env := struct {
		Event   models.EventName `json:"event"`
		Payload any              `json:"payload,omitempty"`
	}{Event: name, Payload: payload}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("failed to emit %s: %w", name, err)
	}
	return nil
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	if c.opts.ClientID != "" {
		header.Set("X-Client-ID", c.opts.ClientID)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (c *Channel) readLoop() {
	defer c.readWG.Done()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		var env models.Envelope
		err := conn.ReadJSON(&env)
		if err != nil {
			select {
			case <-c.stopChan:
				return
			default:
			}

			c.logger.Warn("Push channel read failed, reconnecting", zap.Error(err))
			if !c.reconnect() {
				return
			}
			continue
		}

		c.dispatch(env)
	}
}

// reconnect retries with increasing-then-capped delay up to the attempt
// ceiling. Returns false when the read loop should exit.
func (c *Channel) reconnect() bool {
	delay := c.opts.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		select {
		case <-c.stopChan:
			return false
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.opts.MaxDelay {
			delay = c.opts.MaxDelay
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.DialTimeout)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			lastErr = err
			c.logger.Warn("Reconnect attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.opts.MaxAttempts),
				zap.Error(err),
			)
			continue
		}

		c.mu.Lock()
		if !c.connected {
			c.mu.Unlock()
			conn.Close()
			return false
		}
		c.conn = conn
		c.mu.Unlock()

		c.logger.Info("Push channel reconnected", zap.Int("attempt", attempt))
		c.enqueue(models.ReconnectEvent{Attempt: attempt})
		return true
	}

	c.logger.Error("Push channel gave up reconnecting",
		zap.Int("attempts", c.opts.MaxAttempts),
		zap.Error(lastErr),
	)

	c.mu.Lock()
	c.connected = false
	c.conn = nil
	events := c.events
	c.events = nil
	onFailure := c.onFailure
	c.mu.Unlock()

	if onFailure != nil {
		onFailure(&TerminalError{Attempts: c.opts.MaxAttempts, Err: lastErr})
	}
	if events != nil {
		close(events)
	}
	return false
}

func (c *Channel) dispatch(env models.Envelope) {
	event, err := models.DecodeEvent(env)
	if err != nil {
		// Unknown or malformed events are skipped, not fatal; the server
		// may be newer than this agent.
		c.logger.Debug("Skipping push event", zap.String("event", string(env.Event)), zap.Error(err))
		return
	}
	c.enqueue(event)
}

// enqueue hands a decoded event to the dispatch goroutine. Called only from
// the read goroutine; gives up once the channel is shutting down.
func (c *Channel) enqueue(event models.Event) {
	c.mu.Lock()
	events := c.events
	stop := c.stopChan
	c.mu.Unlock()
	if events == nil {
		return
	}

	select {
	case events <- event:
	case <-stop:
	}
}

// dispatchLoop invokes registered handlers for each queued event, exiting
// once the channel closes its event queue
func (c *Channel) dispatchLoop(events <-chan models.Event) {
	for event := range events {
		c.emitLocal(event)
	}
}

// emitLocal invokes registered handlers for an event
func (c *Channel) emitLocal(event models.Event) {
	c.mu.Lock()
	registered := c.handlers[event.EventName()]
	hs := make([]Handler, 0, len(registered))
	for _, h := range registered {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	for _, h := range hs {
		h(event)
	}
}
