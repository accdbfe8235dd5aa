package psxterminal

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"upwrdfin/logger"
)

const (
	DefaultStreamURL = "wss://psxterminal.com/"

	defaultReconnectDelay = 5 * time.Second
	defaultKeepAlive      = 20 * time.Second
	defaultOpTimeout      = 10 * time.Second
	controlWriteWait      = time.Second
)

type subscribeRequest struct {
	Type             string          `json:"type"`
	SubscriptionType string          `json:"subscriptionType"`
	Params           subscribeParams `json:"params"`
}

type subscribeParams struct {
	MarketType string `json:"marketType"`
}

// StreamEvents receives connection lifecycle notifications. Any field may be nil.
type StreamEvents struct {
	OnOpen   func()
	OnClose  func(err error)
	OnBatch  func(Batch)
	OnIgnore func()
}

// Stream keeps one push-stream connection alive, reconnecting after a fixed
// delay until its context ends.
type Stream struct {
	url            string
	markets        []string
	reconnectDelay time.Duration
	keepAlive      time.Duration
	opTimeout      time.Duration
	dialer         *websocket.Dialer
	log            *logger.Entry

	open   atomic.Bool
	connMu sync.Mutex
	conn   *websocket.Conn
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithReconnectDelay sets the fixed backoff between connection attempts.
func WithReconnectDelay(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.reconnectDelay = d
		}
	}
}

// WithKeepAlive sets the control ping interval.
func WithKeepAlive(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

// WithStreamTimeout bounds the handshake and every subscribe write.
func WithStreamTimeout(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) StreamOption {
	return func(s *Stream) {
		if d != nil {
			s.dialer = d
		}
	}
}

// NewStream subscribes to the regular and index market channels on every connect.
func NewStream(url string, opts ...StreamOption) *Stream {
	if url == "" {
		url = DefaultStreamURL
	}
	s := &Stream{
		url:            url,
		markets:        []string{"REG", "IDX"},
		reconnectDelay: defaultReconnectDelay,
		keepAlive:      defaultKeepAlive,
		opTimeout:      defaultOpTimeout,
		log:            logger.GetLogger().WithComponent("psx_stream"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialer == nil {
		s.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: s.opTimeout,
		}
	}
	return s
}

// IsOpen reports whether a subscribed connection is currently live.
func (s *Stream) IsOpen() bool {
	return s.open.Load()
}

// Run blocks until ctx is cancelled.
func (s *Stream) Run(ctx context.Context, events StreamEvents) {
	for {
		if ctx.Err() != nil {
			return
		}

		dialCtx, cancelDial := context.WithTimeout(ctx, s.opTimeout)
		conn, _, err := s.dialer.DialContext(dialCtx, s.url, nil)
		cancelDial()
		if err != nil {
			s.log.WithError(err).WithField("url", s.url).Warn("failed to connect to psx stream")
			if events.OnClose != nil {
				events.OnClose(err)
			}
			if waitForReconnect(ctx, s.reconnectDelay) {
				return
			}
			continue
		}
		s.trackConn(conn)

		if err := s.subscribe(conn); err != nil {
			s.log.WithError(err).WithField("url", s.url).Warn("failed to subscribe to psx stream")
			s.trackConn(nil)
			conn.Close()
			if events.OnClose != nil {
				events.OnClose(err)
			}
			if waitForReconnect(ctx, s.reconnectDelay) {
				return
			}
			continue
		}

		s.open.Store(true)
		if events.OnOpen != nil {
			events.OnOpen()
		}

		// Pongs and data frames both prove the upstream is alive.
		readWait := 2 * s.keepAlive
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readWait))
		})
		pingCancel := startPingLoop(ctx, conn, s.keepAlive, s.log)
		err = readMessages(ctx, conn, readWait, func(data []byte) {
			batch, ok := ParseStreamMessage(data)
			if !ok {
				if events.OnIgnore != nil {
					events.OnIgnore()
				}
				return
			}
			if events.OnBatch != nil {
				events.OnBatch(batch)
			}
		})
		pingCancel()

		s.open.Store(false)
		s.trackConn(nil)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		s.log.WithError(err).WithField("url", s.url).Warn("psx stream closed; reconnecting")
		if events.OnClose != nil {
			events.OnClose(err)
		}
		if waitForReconnect(ctx, s.reconnectDelay) {
			return
		}
	}
}

// Close drops the active connection. Run reconnects unless its context is done.
func (s *Stream) Close() {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(controlWriteWait))
		conn.Close()
	}
}

func (s *Stream) trackConn(conn *websocket.Conn) {
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
}

func (s *Stream) subscribe(conn *websocket.Conn) error {
	for _, market := range s.markets {
		req := subscribeRequest{
			Type:             "subscribe",
			SubscriptionType: "market-data",
			Params:           subscribeParams{MarketType: market},
		}
		s.connMu.Lock()
		err := conn.SetWriteDeadline(time.Now().Add(s.opTimeout))
		if err == nil {
			err = conn.WriteJSON(req)
		}
		s.connMu.Unlock()
		if err != nil {
			return err
		}
	}
	return conn.SetWriteDeadline(time.Time{})
}

// readMessages fails once nothing, not even a pong, arrives within readWait.
func readMessages(ctx context.Context, conn *websocket.Conn, readWait time.Duration, handler func([]byte)) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := conn.SetReadDeadline(time.Now().Add(readWait)); err != nil {
			return err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		handler(msg)
	}
}

func waitForReconnect(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}

func startPingLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration, log *logger.Entry) context.CancelFunc {
	if interval <= 0 {
		interval = defaultKeepAlive
	}
	pingCtx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait)); err != nil {
					log.WithError(err).Warn("failed to send websocket ping; dropping connection")
					// Unblocks the read loop so Run can reconnect.
					conn.Close()
					cancel()
					return
				}
			}
		}
	}()
	return cancel
}
