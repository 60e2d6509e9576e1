// Package feed owns the persistent WebSocket connection to the price
// feed: connect, subscribe, receive, classify, and reconnect. Decoded
// events flow into the listings cache; the session never surfaces
// transport errors to callers.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sileric/mbwatch/internal/cache"
	"github.com/sileric/mbwatch/internal/wire"
)

const (
	// Minimum spacing between connect attempts, and the delay before a
	// reconnect after a dropped connection. Keeps us from hot-looping
	// against a refusing endpoint.
	connectThrottle = 5 * time.Second
	reconnectDelay  = 5 * time.Second

	dialTimeout = 10 * time.Second

	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 1024 * 1024 // 1MB

	// Diagnostic ring of recent events for the status endpoint.
	liveFeedCapacity = 256
)

// State is the session's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

// Settings is the slice of configuration the session reads.
type Settings struct {
	Enabled        bool
	Endpoint       string
	ListingsAdd    bool
	ListingsRemove bool
	SalesAdd       bool
}

// Hooks are the session's outbound notifications. Nil hooks are skipped.
// They are invoked from the receive loop, so they must not block.
type Hooks struct {
	PriceUpdate     func(Event)
	ConnectionState func(connected bool)
	ListingUpdated  func(itemID, worldID int)
}

// Session maintains one feed connection and the subscription set that
// survives it across reconnects.
type Session struct {
	settings Settings
	hooks    Hooks
	cache    *cache.Listings
	live     *LiveFeed
	logger   *zap.Logger
	dialer   *websocket.Dialer

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	cancel      context.CancelFunc
	disposed    bool
	lastAttempt time.Time

	// Channel set has its own lock: subscription bookkeeping never
	// interacts with connection state.
	chanMu   sync.Mutex
	channels map[string]struct{}

	// Overridable in tests; production keeps the package constants.
	throttle time.Duration
	retryIn  time.Duration
	now      func() time.Time
}

func NewSession(settings Settings, listings *cache.Listings, hooks Hooks, logger *zap.Logger) *Session {
	return &Session{
		settings: settings,
		hooks:    hooks,
		cache:    listings,
		live:     NewLiveFeed(liveFeedCapacity),
		logger:   logger,
		dialer:   &websocket.Dialer{HandshakeTimeout: dialTimeout},
		channels: make(map[string]struct{}),
		throttle: connectThrottle,
		retryIn:  reconnectDelay,
		now:      time.Now,
	}
}

// Start attempts to connect. It is a guarded no-op when the session is
// disposed, the feed is disabled, a connection is already up, or the
// previous attempt was too recent; the sentinel errors let callers
// decide what to log.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if !s.settings.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	if s.now().Sub(s.lastAttempt) < s.throttle {
		s.mu.Unlock()
		return ErrThrottled
	}
	s.lastAttempt = s.now()
	s.state = StateConnecting
	s.mu.Unlock()

	return s.connect()
}

// Stop tears the connection down: cancel the receive loop, best-effort
// close message, always release the socket. The session can be started
// again afterwards.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel, conn := s.cancel, s.conn
	s.cancel, s.conn = nil, nil
	wasConnected := s.state == StateConnected
	s.state = StateDisconnected
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
	if wasConnected {
		s.notifyConnection(false)
	}
}

// Close stops the session and marks it disposed. Idempotent; a disposed
// session rejects Start forever.
func (s *Session) Close() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.mu.Unlock()

	s.Stop()
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Live exposes the diagnostic ring of recent events.
func (s *Session) Live() *LiveFeed {
	return s.live
}

// Subscribe tracks the channel unconditionally, so the set is right
// even while disconnected, and sends the subscribe message if a
// connection is up. Send failures are logged only; the tracked channel
// is replayed on the next reconnect.
func (s *Session) Subscribe(channel string) {
	s.chanMu.Lock()
	s.channels[channel] = struct{}{}
	s.chanMu.Unlock()

	if err := s.send(wire.EncodeSubscribe(channel)); err != nil {
		s.logger.Warn("subscribe send failed",
			zap.String("channel", channel), zap.Error(err))
	}
}

// Unsubscribe is the inverse of Subscribe.
func (s *Session) Unsubscribe(channel string) {
	s.chanMu.Lock()
	delete(s.channels, channel)
	s.chanMu.Unlock()

	if err := s.send(wire.EncodeUnsubscribe(channel)); err != nil {
		s.logger.Warn("unsubscribe send failed",
			zap.String("channel", channel), zap.Error(err))
	}
}

// Channels returns the tracked channel set, sorted.
func (s *Session) Channels() []string {
	s.chanMu.Lock()
	out := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		out = append(out, ch)
	}
	s.chanMu.Unlock()
	sort.Strings(out)
	return out
}

func (s *Session) connect() error {
	dialCtx, cancelDial := context.WithTimeout(context.Background(), dialTimeout)
	conn, _, err := s.dialer.DialContext(dialCtx, s.settings.Endpoint, nil)
	cancelDial()
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		retry := s.settings.Enabled && !s.disposed
		s.mu.Unlock()

		s.logger.Warn("feed connect failed",
			zap.String("endpoint", s.settings.Endpoint), zap.Error(err))
		s.notifyConnection(false)
		if retry {
			s.scheduleReconnect()
		}
		return fmt.Errorf("dialing feed: %w", err)
	}

	conn.SetReadLimit(maxMessageSize)
	connID := uuid.NewString()[:8]

	loopCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.disposed || s.state != StateConnecting {
		// Disposed or stopped while dialing; the fresh socket loses.
		disposed := s.disposed
		s.mu.Unlock()
		cancel()
		_ = conn.Close()
		if disposed {
			return ErrDisposed
		}
		return nil
	}
	s.conn = conn
	s.cancel = cancel
	s.state = StateConnected
	s.mu.Unlock()

	s.logger.Info("feed connected",
		zap.String("conn", connID), zap.String("endpoint", s.settings.Endpoint))
	s.notifyConnection(true)
	s.resubscribeAll()

	go s.receiveLoop(loopCtx, conn, connID)
	return nil
}

// receiveLoop is the sole reader of the socket. It runs until the
// connection drops or the session is stopped; on an abnormal exit it
// schedules one reconnect after the fixed delay.
func (s *Session) receiveLoop(ctx context.Context, conn *websocket.Conn, connID string) {
	// Unblock ReadMessage on cancellation; teardown must not wait for
	// an in-flight read.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		switch msgType {
		case websocket.BinaryMessage:
			s.handleFrame(data)
		case websocket.TextMessage:
			s.logger.Debug("ignoring text frame",
				zap.String("conn", connID), zap.Int("bytes", len(data)))
		}
	}

	cancelled := ctx.Err() != nil

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.cancel = nil
		s.state = StateDisconnected
	}
	retry := s.settings.Enabled && !s.disposed
	s.mu.Unlock()
	_ = conn.Close()

	if cancelled {
		// Explicit stop; Stop already notified.
		return
	}

	s.logger.Warn("feed connection lost", zap.String("conn", connID))
	s.notifyConnection(false)
	if retry {
		s.scheduleReconnect()
	}
}

func (s *Session) scheduleReconnect() {
	s.logger.Info("scheduling reconnect", zap.Duration("delay", s.retryIn))
	time.AfterFunc(s.retryIn, func() {
		err := s.Start()
		if err != nil && !errors.Is(err, ErrDisposed) && !errors.Is(err, ErrDisabled) {
			s.logger.Warn("reconnect attempt failed", zap.Error(err))
		}
	})
}

// resubscribeAll replays the tracked channel set after a reconnect.
// Per-channel failures do not abort the rest.
func (s *Session) resubscribeAll() {
	for _, ch := range s.Channels() {
		if err := s.send(wire.EncodeSubscribe(ch)); err != nil {
			s.logger.Warn("resubscribe failed",
				zap.String("channel", ch), zap.Error(err))
		}
	}
}

// send writes one binary frame if connected; while disconnected it is a
// silent no-op since the channel set is replayed on reconnect.
func (s *Session) send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.state != StateConnected {
		return nil
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// handleFrame decodes and folds one inbound binary frame. Malformed or
// unrecognized frames are dropped; a bad frame never ends the loop.
func (s *Session) handleFrame(data []byte) {
	name := wire.EventName(data)
	if kindFromEventName(name) == KindUnknown {
		if name != "" {
			s.logger.Debug("unknown feed event", zap.String("event", name))
		}
		return
	}

	doc, err := wire.Decode(data)
	if err != nil {
		s.logger.Debug("dropping malformed frame", zap.Error(err))
		return
	}

	for _, e := range eventsFromDoc(doc, s.now()) {
		s.live.Add(e)
		if s.hooks.PriceUpdate != nil {
			s.hooks.PriceUpdate(e)
		}

		switch e.Kind {
		case KindListingsAdd, KindSalesAdd:
			if s.cache.UpdateFromPush(e.ItemID, e.WorldID, e.PricePerUnit, e.HQ) {
				if s.hooks.ListingUpdated != nil {
					s.hooks.ListingUpdated(e.ItemID, e.WorldID)
				}
			}
		case KindListingsRemove, KindUnknown:
			// Removals carry no replacement price; backfill reconciles
			// the entry on its next pass.
		}
	}
}

func (s *Session) notifyConnection(connected bool) {
	if s.hooks.ConnectionState != nil {
		s.hooks.ConnectionState(connected)
	}
}
