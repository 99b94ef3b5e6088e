package transport

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aidevmon/mcp-transport/internal/config"
	"github.com/aidevmon/mcp-transport/internal/observe"
	"github.com/aidevmon/mcp-transport/internal/protocol"
	"github.com/aidevmon/mcp-transport/pkg/logger"
)

// Handler receives unsolicited inbound envelopes of a registered type.
type Handler func(*protocol.Envelope)

// Client owns one persistent WebSocket to the MCP server: it correlates
// requests to responses, batches low-urgency traffic, compresses large
// frames, probes liveness, and reconnects with exponential backoff.
//
// The socket handle is owned here exclusively; the batch queue and the
// compression codec only hand finished frames to transmit.
type Client struct {
	cfg            *config.Config
	log            *zap.SugaredLogger
	clientID       string
	conversationID string

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	connDone       chan struct{}
	gen            uint64 // bumped on every connection change; guards stale loops
	attempts       int
	lastErr        error
	lastHeartbeat  time.Time
	reconnectTimer *time.Timer
	persistTimer   *time.Timer
	suppressEvents bool

	writeMu sync.Mutex // serializes writes on the socket

	pending *pendingRegistry
	queue   *batchQueue
	stats   *statistics

	handlersMu    sync.RWMutex
	handlers      map[protocol.MessageType][]Handler
	errorHandlers []func(error)
	stateHandlers []func(State)
}

// New builds a client from cfg. Missing client id gets a fresh uuid; a new
// conversation id is minted per client instance.
func New(cfg *config.Config) *Client {
	if cfg == nil {
		cfg = config.Default()
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = uuid.New().String()
	}
	c := &Client{
		cfg:            cfg,
		log:            logger.S().With("client_id", clientID),
		clientID:       clientID,
		conversationID: uuid.New().String(),
		pending:        newPendingRegistry(),
		stats:          newStatistics(),
		handlers:       make(map[protocol.MessageType][]Handler),
	}
	c.queue = newBatchQueue(cfg.BatchDelay, cfg.BatchMaxSize, cfg.MaxQueuedMessages, c.flushEntries)
	return c
}

func (c *Client) ClientID() string       { return c.clientID }
func (c *Client) ConversationID() string { return c.conversationID }

// endpoint appends the client id to the configured URL path so the server
// can tell logical clients apart.
func (c *Client) endpoint() string {
	return strings.TrimRight(c.cfg.ServerURL, "/") + "/" + c.clientID
}

// Connect establishes the connection. A failure before the first
// successful handshake is surfaced here and does not trigger automatic
// reconnection. While automatic reconnection is in progress the call
// reports the standing outage instead of success.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected, StateConnecting:
		c.mu.Unlock()
		return nil
	case StateReconnecting:
		cause := c.lastErr
		c.mu.Unlock()
		return newError(KindConnectionLost, "reconnection in progress", cause)
	case StateClosing:
		c.mu.Unlock()
		return newError(KindConnectionLost, "client is closing", nil)
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.mu.Lock()
		c.lastErr = err
		if c.state == StateConnecting {
			c.setStateLocked(StateDisconnected)
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// Disconnect tears the connection down. Pending requests fail with
// ErrRequestCancelled; queued envelopes are flushed or discarded per
// configuration. suppressEvents skips state-change and error callbacks.
// Calling it twice is a no-op.
func (c *Client) Disconnect(suppressEvents bool) error {
	c.mu.Lock()
	if c.state == StateClosing {
		c.mu.Unlock()
		return nil
	}
	idle := c.state == StateDisconnected && c.conn == nil &&
		c.reconnectTimer == nil && c.persistTimer == nil
	if idle {
		c.mu.Unlock()
		return nil
	}
	c.suppressEvents = suppressEvents
	c.setStateLocked(StateClosing)
	c.stopTimersLocked()
	conn := c.conn
	c.mu.Unlock()

	// buffered envelopes get a last chance on the wire before the socket
	// goes away
	if conn != nil && c.cfg.KeepQueuedOnDisconnect {
		c.queue.flush()
	} else {
		c.discardQueue()
	}
	c.pending.failAll(ErrRequestCancelled)

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}

	c.mu.Lock()
	c.closeConnLocked()
	c.setStateLocked(StateDisconnected)
	c.suppressEvents = false
	c.mu.Unlock()
	c.log.Infow("disconnected")
	return nil
}

// Reconnect forces a quiet teardown followed by a fresh connect.
func (c *Client) Reconnect(ctx context.Context) error {
	if err := c.Disconnect(true); err != nil {
		return err
	}
	return c.Connect(ctx)
}

// SendOptions tune one Send call.
type SendOptions struct {
	ParentID string
	Priority Priority
	Metadata map[string]any
	Timeout  time.Duration
}

type SendOption func(*SendOptions)

// WithParent threads the envelope to the request it responds to.
func WithParent(messageID string) SendOption {
	return func(o *SendOptions) { o.ParentID = messageID }
}

func WithPriority(p Priority) SendOption {
	return func(o *SendOptions) { o.Priority = p }
}

func WithMetadata(key string, value any) SendOption {
	return func(o *SendOptions) {
		if o.Metadata == nil {
			o.Metadata = map[string]any{}
		}
		o.Metadata[key] = value
	}
}

// WithTimeout overrides the per-message-type response timeout.
func WithTimeout(d time.Duration) SendOption {
	return func(o *SendOptions) { o.Timeout = d }
}

// Send transmits one envelope and waits for its correlated response. High
// priority bypasses batching; medium/low go through the batch queue. The
// call resolves exactly once: with the response envelope, or with a kinded
// error (timeout, cancellation, remote error, lost connection).
func (c *Client) Send(ctx context.Context, t protocol.MessageType, content any, opts ...SendOption) (*protocol.Envelope, error) {
	so := SendOptions{Priority: PriorityMedium}
	for _, opt := range opts {
		opt(&so)
	}

	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	if st == StateDisconnected || st == StateClosing {
		return nil, newError(KindConnectionLost, "client is not connected", nil)
	}

	env, err := protocol.NewEnvelope(c.conversationID, t, content)
	if err != nil {
		return nil, err
	}
	env.Context.ParentID = so.ParentID
	for k, v := range so.Metadata {
		env.Context.Metadata[k] = v
	}

	timeout := so.Timeout
	if timeout <= 0 {
		timeout = c.cfg.TimeoutFor(string(t))
	}
	req := c.pending.add(env.Context.MessageID, timeout, c.expirePending)

	if so.Priority == PriorityHigh {
		if err := c.transmitSingle(env); err != nil {
			c.pending.takeByID(env.Context.MessageID)
			return nil, err
		}
	} else if err := c.queue.enqueue(env, so.Priority); err != nil {
		c.pending.takeByID(env.Context.MessageID)
		return nil, err
	}

	select {
	case res := <-req.ch:
		return res.env, res.err
	case <-ctx.Done():
		if _, ok := c.pending.takeByID(env.Context.MessageID); ok {
			return nil, newError(KindRequestCancelled, "context cancelled", ctx.Err())
		}
		// completed concurrently with the cancellation; take the outcome
		res := <-req.ch
		return res.env, res.err
	}
}

// OnMessage registers a handler for unsolicited envelopes of type t.
func (c *Client) OnMessage(t protocol.MessageType, h Handler) {
	c.handlersMu.Lock()
	c.handlers[t] = append(c.handlers[t], h)
	c.handlersMu.Unlock()
}

// OnConnectionError registers a callback for connection-level errors:
// unsolicited error envelopes and exhausted reconnection.
func (c *Client) OnConnectionError(h func(error)) {
	c.handlersMu.Lock()
	c.errorHandlers = append(c.errorHandlers, h)
	c.handlersMu.Unlock()
}

// OnStateChange registers a callback invoked on every state transition.
func (c *Client) OnStateChange(h func(State)) {
	c.handlersMu.Lock()
	c.stateHandlers = append(c.stateHandlers, h)
	c.handlersMu.Unlock()
}

// Statistics returns a snapshot of the accumulated counters. Counters are
// never reset by reconnection, only by ResetStatistics.
func (c *Client) Statistics() Stats { return c.stats.snapshot() }

func (c *Client) ResetStatistics() { c.stats.reset() }

// Status reports the current connection state; it stays accurate while a
// failure is being recovered from.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:             c.state,
		ReconnectAttempts: c.attempts,
		QueuedMessages:    c.queue.size(),
		PendingRequests:   c.pending.len(),
		LastHeartbeat:     c.lastHeartbeat,
		LastError:         c.lastErr,
	}
}

// ---- connection lifecycle ----

func (c *Client) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.ConnectTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.endpoint(), nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return newError(KindConnectionTimeout, "dial "+c.endpoint(), err)
	}
	if c.cfg.MaxFrameSize > 0 {
		conn.SetReadLimit(int64(c.cfg.MaxFrameSize))
	}
	c.installLiveness(conn)

	done := make(chan struct{})
	c.mu.Lock()
	if c.state != StateConnecting {
		// superseded by an explicit disconnect while the handshake ran
		c.mu.Unlock()
		_ = conn.Close()
		return newError(KindConnectionLost, "connect superseded", nil)
	}
	c.gen++
	gen := c.gen
	c.conn = conn
	c.connDone = done
	c.attempts = 0
	c.lastErr = nil
	c.lastHeartbeat = time.Now()
	c.stopTimersLocked()
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.log.Infow("connected", "url", c.endpoint())
	go c.readLoop(conn, gen)
	go c.heartbeatLoop(conn, done)

	// anything queued while we were away goes out now
	if c.queue.size() > 0 {
		c.queue.flush()
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleConnectionLoss(gen, err)
			return
		}
		// any traffic counts as liveness
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatTimeout))
		c.mu.Lock()
		c.lastHeartbeat = time.Now()
		c.mu.Unlock()

		raw, err := protocol.MaybeDecompress(data)
		if err != nil {
			c.noteMalformed("decompress", err)
			continue
		}
		envelopes, err := protocol.DecodeFrame(raw, c.cfg.MaxFrameSize)
		if err != nil {
			c.noteMalformed("decode", err)
			continue
		}
		c.stats.recordReceive(len(envelopes), len(data))
		observe.AddReceived(len(envelopes), len(data))
		for _, env := range envelopes {
			c.dispatch(env)
		}
	}
}

// dispatch routes one inbound envelope: correlated response, duplicate,
// connection-level error, or unsolicited handler — exactly one of those.
func (c *Client) dispatch(env *protocol.Envelope) {
	if req, ok := c.pending.take(env); ok {
		if env.Type == protocol.MsgError {
			req.complete(result{err: newError(KindRemoteError, remoteErrorMessage(env), nil)})
		} else {
			req.complete(result{env: env})
		}
		return
	}
	if c.pending.wasResolved(env) {
		c.log.Debugw("duplicate_response_dropped",
			"message_id", env.Context.MessageID, "parent_id", env.Context.ParentID)
		return
	}
	if env.Type == protocol.MsgError {
		c.notifyError(newError(KindRemoteError, remoteErrorMessage(env), nil))
		return
	}
	c.handlersMu.RLock()
	hs := append([]Handler(nil), c.handlers[env.Type]...)
	c.handlersMu.RUnlock()
	if len(hs) == 0 {
		c.log.Debugw("unhandled_message", "type", env.Type, "message_id", env.Context.MessageID)
		return
	}
	for _, h := range hs {
		h(env)
	}
}

// handleConnectionLoss routes an unexpected close into reconnection. The
// generation check makes it fire at most once per outage.
func (c *Client) handleConnectionLoss(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	// flush (or discard) the batch queue before leaving Connected so
	// buffered envelopes are not silently lost
	if c.cfg.KeepQueuedOnDisconnect {
		c.queue.flush()
	} else {
		c.discardQueue()
	}

	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.closeConnLocked()
	c.lastErr = newError(KindConnectionLost, "connection closed unexpectedly", cause)
	c.setStateLocked(StateReconnecting)
	c.mu.Unlock()

	c.stats.recordError()
	observe.IncError(KindConnectionLost.String())
	c.log.Warnw("connection_lost", "err", cause)
	c.scheduleReconnect()
}

// scheduleReconnect arms one backoff timer: base × factor^(attempt-1).
// A second trigger while a timer is armed is a no-op.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.state != StateReconnecting || c.reconnectTimer != nil {
		c.mu.Unlock()
		return
	}
	c.attempts++
	if c.attempts > c.cfg.MaxReconnectAttempts {
		c.lastErr = ErrMaxReconnectAttempts
		c.setStateLocked(StateDisconnected)
		persistent := c.cfg.PersistentReconnect
		if persistent {
			c.persistTimer = time.AfterFunc(c.cfg.PersistentReconnectInterval, c.persistentRetry)
		}
		c.mu.Unlock()
		c.log.Errorw("reconnect_exhausted",
			"max_attempts", c.cfg.MaxReconnectAttempts, "persistent_retry", persistent)
		c.notifyError(ErrMaxReconnectAttempts)
		return
	}
	attempt := c.attempts
	delay := backoffDelay(c.cfg.ReconnectBaseDelay, c.cfg.ReconnectBackoffFactor, attempt)
	c.reconnectTimer = time.AfterFunc(delay, c.attemptReconnect)
	c.mu.Unlock()
	c.log.Infow("reconnect_scheduled", "attempt", attempt, "delay", delay)
}

func (c *Client) attemptReconnect() {
	c.mu.Lock()
	if c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	observe.IncReconnect()
	if err := c.dial(context.Background()); err != nil {
		c.mu.Lock()
		if c.state != StateConnecting {
			c.mu.Unlock()
			return
		}
		c.lastErr = err
		c.setStateLocked(StateReconnecting)
		c.mu.Unlock()
		c.log.Warnw("reconnect_failed", "err", err)
		c.scheduleReconnect()
	}
}

// persistentRetry re-attempts on a coarse fixed interval after automatic
// backoff gave up.
func (c *Client) persistentRetry() {
	c.mu.Lock()
	if c.state != StateDisconnected || !errors.Is(c.lastErr, ErrMaxReconnectAttempts) {
		c.mu.Unlock()
		return
	}
	c.persistTimer = nil
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	observe.IncReconnect()
	if err := c.dial(context.Background()); err != nil {
		c.mu.Lock()
		if c.state != StateConnecting {
			c.mu.Unlock()
			return
		}
		c.lastErr = ErrMaxReconnectAttempts // keep the standing error visible
		c.setStateLocked(StateDisconnected)
		c.persistTimer = time.AfterFunc(c.cfg.PersistentReconnectInterval, c.persistentRetry)
		c.mu.Unlock()
		c.log.Infow("persistent_retry_failed", "err", err)
	}
}

// ---- outbound path ----

func (c *Client) transmitSingle(env *protocol.Envelope) error {
	frame, err := protocol.EncodeFrame(env)
	if err != nil {
		return err
	}
	return c.transmit(frame, 1)
}

// flushEntries is the batch queue sink: one entry goes out as a plain
// frame, several as one array frame in priority order.
func (c *Client) flushEntries(entries []batchEntry) {
	if len(entries) == 0 {
		return
	}
	envelopes := make([]*protocol.Envelope, len(entries))
	for i, e := range entries {
		envelopes[i] = e.env
	}
	var frame []byte
	var err error
	if len(envelopes) == 1 {
		frame, err = protocol.EncodeFrame(envelopes[0])
	} else {
		frame, err = protocol.EncodeBatch(envelopes)
	}
	if err != nil {
		c.log.Errorw("encode_batch_failed", "count", len(envelopes), "err", err)
		for _, env := range envelopes {
			if req, ok := c.pending.takeByID(env.Context.MessageID); ok {
				req.complete(result{err: err})
			}
		}
		return
	}
	if len(envelopes) > 1 {
		c.stats.recordBatched(len(envelopes))
		observe.AddBatched(len(envelopes))
	}
	if err := c.transmit(frame, len(envelopes)); err != nil {
		// requests stay pending: they resolve after a reconnect delivers
		// the response, or hit their own timeout
		c.log.Warnw("flush_write_failed", "count", len(envelopes), "err", err)
	}
}

// transmit compresses a finished frame when worthwhile and writes it to
// the socket. envCount is how many envelopes the frame carries.
func (c *Client) transmit(frame []byte, envCount int) error {
	payload := frame
	compressed := false
	if c.cfg.CompressionEnabled {
		payload, compressed = protocol.Compress(frame, c.cfg.CompressionThreshold)
	}
	msgType := websocket.TextMessage
	if compressed {
		msgType = websocket.BinaryMessage
	}

	c.writeMu.Lock()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.writeMu.Unlock()
		return newError(KindConnectionLost, "no active connection", nil)
	}
	if c.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	err := conn.WriteMessage(msgType, payload)
	c.writeMu.Unlock()
	if err != nil {
		c.stats.recordError()
		observe.IncError(KindConnectionLost.String())
		return newError(KindConnectionLost, "write frame", err)
	}

	saved := 0
	if compressed {
		saved = len(frame) - len(payload)
		observe.IncCompressed(saved)
	}
	c.stats.recordSend(envCount, len(payload), compressed, saved)
	observe.AddSent(envCount, len(payload))
	return nil
}

// ---- internals ----

func (c *Client) expirePending(messageID string) {
	req, ok := c.pending.takeByID(messageID)
	if !ok {
		return
	}
	c.stats.recordError()
	observe.IncError(KindRequestTimeout.String())
	c.log.Warnw("request_timeout", "message_id", messageID)
	req.complete(result{err: ErrRequestTimeout})
}

// discardQueue drops buffered envelopes and cancels their pendings.
func (c *Client) discardQueue() {
	for _, e := range c.queue.drain() {
		if req, ok := c.pending.takeByID(e.env.Context.MessageID); ok {
			req.complete(result{err: ErrRequestCancelled})
		}
	}
}

func (c *Client) noteMalformed(stage string, err error) {
	c.stats.recordError()
	observe.IncError(KindMalformedFrame.String())
	c.log.Warnw("malformed_frame", "stage", stage, "err", err)
}

func (c *Client) notifyError(err error) {
	c.handlersMu.RLock()
	hs := make([]func(error), len(c.errorHandlers))
	copy(hs, c.errorHandlers)
	c.handlersMu.RUnlock()
	for _, h := range hs {
		go h(err)
	}
}

// setStateLocked mutates the state under c.mu and notifies asynchronously
// so callbacks never run with the client lock held.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	observe.SetState(float64(s))
	if c.suppressEvents {
		return
	}
	c.handlersMu.RLock()
	hs := make([]func(State), len(c.stateHandlers))
	copy(hs, c.stateHandlers)
	c.handlersMu.RUnlock()
	for _, h := range hs {
		go h(s)
	}
}

func (c *Client) closeConnLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	if c.connDone != nil {
		close(c.connDone)
		c.connDone = nil
	}
	c.gen++
}

func (c *Client) stopTimersLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.persistTimer != nil {
		c.persistTimer.Stop()
		c.persistTimer = nil
	}
}

// backoffDelay computes the reconnect delay for the 1-based attempt:
// base × factor^(attempt-1).
func backoffDelay(base time.Duration, factor float64, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(base) * math.Pow(factor, float64(attempt-1)))
}

func remoteErrorMessage(env *protocol.Envelope) string {
	var p protocol.ErrorPayload
	if env.DecodeContent(&p) == nil && p.Error != "" {
		return p.Error
	}
	return "error envelope " + env.Context.MessageID
}
