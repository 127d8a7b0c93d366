package hyperliquid

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"feed_go/internal/domain"
	"feed_go/internal/infra"
)

// Dispatcher routes decoded stream payloads into the topic caches. Calls
// happen on the read loop goroutine, so implementations must be fast and
// must never block.
type Dispatcher interface {
	ApplyMids(mids map[string]decimal.Decimal)
	ApplyBook(book *domain.OrderBook)
	ApplyFills(account string, fills []domain.Fill, snapshot bool)
	ApplyUserEvent(account string, positions []domain.Position, balance *domain.AccountState)
}

// wsConn is the subset of *websocket.Conn the stream uses. Tests inject a
// scripted implementation through DialFunc.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// DialFunc opens one websocket connection to the exchange.
type DialFunc func(ctx context.Context) (wsConn, error)

func gorillaDial(url string) DialFunc {
	return func(ctx context.Context) (wsConn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, domain.NewNetworkError("connect", err)
		}
		return conn, nil
	}
}

// Status is a point-in-time view of connection health.
type Status struct {
	State               domain.ConnState
	ConsecutiveFailures int
	PersistentFailure   bool
	LastPong            time.Time
}

// Stream owns the single websocket connection to the exchange: connect,
// subscribe, heartbeat, reconnect with exponential backoff, and dispatch
// of inbound frames. All consumers share this one connection.
type Stream struct {
	url        string
	account    string
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *infra.Metrics

	heartbeatInterval time.Duration
	pongTimeout       time.Duration
	reconnectBase     time.Duration
	reconnectMax      time.Duration
	maxAttempts       int
	bookDepth         int

	dial DialFunc
	now  func() time.Time

	// randomize disables backoff jitter when false (deterministic tests).
	randomize bool

	// subs values record whether the subscribe frame already went out on
	// the current connection; resubscribeAll resets them per connect.
	subMu sync.Mutex
	subs  map[domain.Subscription]bool

	connMu  sync.Mutex
	conn    wsConn
	writeMu sync.Mutex

	state             atomic.Int32
	failures          atomic.Int32
	persistentFailure atomic.Bool
	lastPong          atomic.Int64 // unix nanos

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewStream(cfg *infra.Config, dispatcher Dispatcher, logger *slog.Logger, metrics *infra.Metrics) *Stream {
	s := &Stream{
		url:               cfg.API.Hyperliquid.WSURL,
		account:           cfg.API.Hyperliquid.Account,
		dispatcher:        dispatcher,
		logger:            logger,
		metrics:           metrics,
		heartbeatInterval: cfg.HeartbeatInterval(),
		pongTimeout:       cfg.PongTimeout(),
		reconnectBase:     cfg.ReconnectBase(),
		reconnectMax:      cfg.ReconnectMax(),
		maxAttempts:       cfg.Feed.ReconnectMaxAttempts,
		bookDepth:         cfg.Feed.OrderBook.DepthLevels,
		now:               time.Now,
		randomize:         true,
		subs:              make(map[domain.Subscription]bool),
	}
	s.dial = gorillaDial(s.url)
	return s
}

// Start launches the connection loop. Safe to call more than once; only
// the first call has any effect.
func (s *Stream) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		s.logger.Debug("Stream already started")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.connectionLoop(runCtx)
}

// Stop closes the connection and waits for the loops to exit. Idempotent.
func (s *Stream) Stop() {
	if !s.started.CompareAndSwap(true, false) {
		return
	}
	s.cancel()
	s.closeConn()
	s.wg.Wait()
	s.setState(domain.StateDisconnected)
	s.logger.Info("Stream stopped")
}

// Want registers a subscription. Duplicate registrations are ignored; if
// the connection is live the subscribe frame goes out immediately,
// otherwise it is sent on the next (re)connect.
func (s *Stream) Want(sub domain.Subscription) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if _, exists := s.subs[sub]; exists {
		return
	}
	s.subs[sub] = false

	if s.State() != domain.StateConnected {
		return
	}
	if err := s.sendSubscribe(sub); err != nil {
		s.logger.Warn("Subscribe send failed, will retry on reconnect",
			"topic", sub.Topic, "key", sub.Key, "error", err)
		return
	}
	s.subs[sub] = true
}

// State returns the current connection lifecycle state.
func (s *Stream) State() domain.ConnState {
	return domain.ConnState(s.state.Load())
}

// Status reports connection health for diagnostics.
func (s *Stream) Status() Status {
	return Status{
		State:               s.State(),
		ConsecutiveFailures: int(s.failures.Load()),
		PersistentFailure:   s.persistentFailure.Load(),
		LastPong:            time.Unix(0, s.lastPong.Load()),
	}
}

func (s *Stream) setState(state domain.ConnState) {
	old := domain.ConnState(s.state.Swap(int32(state)))
	s.metrics.SetConnState(int32(state))
	if old != state {
		s.logger.Info("Connection state changed", "from", old.String(), "to", state.String())
	}
}

func (s *Stream) connectionLoop(ctx context.Context) {
	defer s.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.reconnectBase
	bo.MaxInterval = s.reconnectMax
	if !s.randomize {
		bo.RandomizationFactor = 0
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.setState(domain.StateConnecting)

		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.metrics.RecordReconnect()
			failures := s.failures.Add(1)
			s.logger.Warn("Connection attempt failed",
				"attempt", failures, "error", err)

			if int(failures) >= s.maxAttempts && !s.persistentFailure.Load() {
				s.persistentFailure.Store(true)
				s.logger.Error("Persistent connection failure, still retrying at max interval",
					"attempts", failures)
			}

			sleep := bo.NextBackOff()
			if sleep == backoff.Stop {
				sleep = s.reconnectMax
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(sleep):
			}
			continue
		}

		// Connected: reset failure tracking so the next outage starts
		// from the base delay again.
		s.failures.Store(0)
		s.persistentFailure.Store(false)
		bo.Reset()

		s.setConn(conn)
		s.resetSent()
		s.lastPong.Store(s.now().UnixNano())
		s.setState(domain.StateConnected)
		s.logger.Info("Connected to exchange", "url", s.url)

		s.resubscribeAll()

		hbCtx, hbCancel := context.WithCancel(ctx)
		s.wg.Add(1)
		go s.heartbeatLoop(hbCtx)

		s.readLoop(ctx)

		hbCancel()
		s.closeConn()

		if ctx.Err() != nil {
			return
		}
		s.metrics.RecordReconnect()

		// Brief pause before redialing keeps a flapping endpoint from
		// turning this loop into a busy spin.
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectBase):
		}
	}
}

// resetSent clears the per-connection sent flags. Must run before the
// state turns connected so Want cannot mark a flag the reset would wipe.
func (s *Stream) resetSent() {
	s.subMu.Lock()
	for sub := range s.subs {
		s.subs[sub] = false
	}
	s.subMu.Unlock()
}

// resubscribeAll replays the wanted set on a fresh connection, skipping
// anything Want already sent on this connection. Holding subMu for the
// writes keeps the replay and concurrent Want calls from both sending
// the same subscription.
func (s *Stream) resubscribeAll() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	sent := 0
	for sub, done := range s.subs {
		if done {
			continue
		}
		if err := s.sendSubscribe(sub); err != nil {
			s.logger.Warn("Resubscribe failed",
				"topic", sub.Topic, "key", sub.Key, "error", err)
			return
		}
		s.subs[sub] = true
		sent++
	}
	s.logger.Debug("Subscriptions replayed", "count", sent)
}

func (s *Stream) sendSubscribe(sub domain.Subscription) error {
	for _, ws := range subscriptionFor(sub) {
		msg := wsRequest{Method: "subscribe", Subscription: &ws}
		if err := s.writeJSON(&msg); err != nil {
			return err
		}
	}
	return nil
}

// writeJSON serializes writes; gorilla connections allow one concurrent
// writer only.
func (s *Stream) writeJSON(v any) error {
	conn := s.currentConn()
	if conn == nil {
		return domain.ErrConnectionFailed
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return domain.NewNetworkError("write", err)
	}
	return nil
}

func (s *Stream) setConn(conn wsConn) {
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
}

func (s *Stream) currentConn() wsConn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

func (s *Stream) closeConn() {
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()
}

// heartbeatLoop sends application-level pings and watches for the pong
// frame. A missed pong marks the connection degraded and forces a
// reconnect through the read loop.
func (s *Stream) heartbeatLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeJSON(&wsRequest{Method: "ping"}); err != nil {
				s.logger.Warn("Ping failed", "error", err)
				continue
			}

			sincePong := s.now().Sub(time.Unix(0, s.lastPong.Load()))
			if sincePong > s.heartbeatInterval+s.pongTimeout {
				s.logger.Warn("Pong overdue, forcing reconnect",
					"since_pong", sincePong.String())
				s.setState(domain.StateDegraded)
				s.closeConn()
				return
			}
		}
	}
}

func (s *Stream) readLoop(ctx context.Context) {
	for {
		conn := s.currentConn()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(s.now().Add(s.heartbeatInterval + 2*s.pongTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("Read failed, reconnecting", "error", err)
			}
			return
		}

		s.handleMessage(msg)
	}
}

// handleMessage decodes one inbound frame and routes it by channel.
// Malformed frames are counted and dropped; they never tear the
// connection down.
func (s *Stream) handleMessage(msg []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		s.metrics.RecordProtocolError()
		s.logger.Warn("Undecodable frame", "error", err)
		return
	}

	switch env.Channel {
	case "pong":
		s.lastPong.Store(s.now().UnixNano())
		if s.State() == domain.StateDegraded {
			s.setState(domain.StateConnected)
		}

	case "subscriptionResponse":
		s.logger.Debug("Subscription acknowledged")

	case "allMids":
		s.handleAllMids(env.Data)

	case "l2Book":
		s.handleL2Book(env.Data)

	case "userFills":
		s.handleUserFills(env.Data)

	case "userEvents", "user":
		s.handleUserEvents(env.Data)

	case "":
		s.metrics.RecordProtocolError()

	default:
		s.metrics.RecordProtocolError()
		s.logger.Debug("Unrecognized channel", "channel", env.Channel)
	}
}

func (s *Stream) handleAllMids(data json.RawMessage) {
	var payload allMidsData
	if err := json.Unmarshal(data, &payload); err != nil {
		s.metrics.RecordProtocolError()
		s.logger.Warn("Bad allMids frame", "error", err)
		return
	}

	mids := make(map[string]decimal.Decimal, len(payload.Mids))
	for coin, raw := range payload.Mids {
		mid, err := parseDecimal("mid", raw)
		if err != nil {
			s.metrics.RecordProtocolError()
			continue
		}
		mids[coin] = mid
	}
	if len(mids) == 0 {
		return
	}

	s.metrics.RecordDispatch()
	s.dispatcher.ApplyMids(mids)
}

func (s *Stream) handleL2Book(data json.RawMessage) {
	var payload l2BookData
	if err := json.Unmarshal(data, &payload); err != nil {
		s.metrics.RecordProtocolError()
		s.logger.Warn("Bad l2Book frame", "error", err)
		return
	}

	book, err := payload.toBook(s.bookDepth)
	if err != nil {
		s.metrics.RecordProtocolError()
		s.logger.Warn("Bad l2Book payload", "error", err)
		return
	}

	s.metrics.RecordDispatch()
	s.dispatcher.ApplyBook(book)
}

func (s *Stream) handleUserFills(data json.RawMessage) {
	var payload userFillsData
	if err := json.Unmarshal(data, &payload); err != nil {
		s.metrics.RecordProtocolError()
		s.logger.Warn("Bad userFills frame", "error", err)
		return
	}

	fills := make([]domain.Fill, 0, len(payload.Fills))
	for i := range payload.Fills {
		fill, err := payload.Fills[i].toFill()
		if err != nil {
			s.metrics.RecordProtocolError()
			continue
		}
		fills = append(fills, fill)
	}
	if len(fills) == 0 && !payload.IsSnapshot {
		return
	}

	account := payload.User
	if account == "" {
		account = s.account
	}
	s.metrics.RecordDispatch()
	s.dispatcher.ApplyFills(account, fills, payload.IsSnapshot)
}

func (s *Stream) handleUserEvents(data json.RawMessage) {
	var payload userEventsData
	if err := json.Unmarshal(data, &payload); err != nil {
		s.metrics.RecordProtocolError()
		s.logger.Warn("Bad userEvents frame", "error", err)
		return
	}

	positions := make([]domain.Position, 0, len(payload.AssetPositions))
	for _, ap := range payload.AssetPositions {
		pos, err := ap.Position.toPosition()
		if err != nil {
			s.metrics.RecordProtocolError()
			continue
		}
		positions = append(positions, pos)
	}

	var balance *domain.AccountState
	if payload.MarginSummary != nil {
		bal, err := payload.MarginSummary.toAccountState()
		if err != nil {
			s.metrics.RecordProtocolError()
			s.logger.Warn("Bad margin summary", "error", err)
		} else {
			balance = &bal
		}
	}

	if len(positions) == 0 && balance == nil {
		return
	}

	account := payload.User
	if account == "" {
		account = s.account
	}
	s.metrics.RecordDispatch()
	s.dispatcher.ApplyUserEvent(account, positions, balance)
}
