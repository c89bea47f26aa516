package marketdata

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/mkarag/aifolio/internal/domain"
)

const (
	dialTimeout = 30 * time.Second

	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10

	// Pushed state older than this is ignored and callers fall back to HTTP
	cacheStaleThreshold = 5 * time.Minute
)

// SessionWebSocket subscribes to market session pushes so the engine does not
// hit the HTTP endpoint on every batch.
type SessionWebSocket struct {
	url string
	log zerolog.Logger

	mu         sync.RWMutex
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	stopped    bool

	stopChan chan struct{}

	cacheMu    sync.RWMutex
	lastStatus domain.SessionStatus
	lastUpdate time.Time
}

// sessionMessage is the pushed payload shape
type sessionMessage struct {
	IsOpen bool   `json:"is_open"`
	Error  string `json:"error,omitempty"`
}

// NewSessionWebSocket creates the session push subscriber
func NewSessionWebSocket(url string, log zerolog.Logger) *SessionWebSocket {
	return &SessionWebSocket{
		url:      url,
		log:      log.With().Str("component", "session_websocket").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start connects and begins the read loop. A failed initial connection is not
// fatal: reconnection continues in the background and callers fall back to
// HTTP until state arrives.
func (ws *SessionWebSocket) Start() error {
	if err := ws.connect(); err != nil {
		ws.log.Warn().Err(err).Msg("Initial WebSocket connection failed, will retry in background")
		go ws.reconnectLoop()
		return err
	}

	ws.mu.RLock()
	ctx := ws.connCtx
	ws.mu.RUnlock()
	go ws.readMessages(ctx)

	ws.log.Info().Msg("Session WebSocket started")
	return nil
}

// Stop shuts the subscriber down
func (ws *SessionWebSocket) Stop() {
	ws.mu.Lock()
	if ws.stopped {
		ws.mu.Unlock()
		return
	}
	ws.stopped = true
	ws.mu.Unlock()

	close(ws.stopChan)
	ws.disconnect()
}

// CachedStatus returns the last pushed session state, if fresh enough to use
func (ws *SessionWebSocket) CachedStatus() (domain.SessionStatus, bool) {
	ws.cacheMu.RLock()
	defer ws.cacheMu.RUnlock()

	if ws.lastUpdate.IsZero() || time.Since(ws.lastUpdate) > cacheStaleThreshold {
		return domain.SessionStatus{}, false
	}
	return ws.lastStatus, true
}

func (ws *SessionWebSocket) connect() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, ws.url, nil)
	if err != nil {
		return err
	}

	connCtx, cancel := context.WithCancel(context.Background())
	ws.conn = conn
	ws.connCtx = connCtx
	ws.cancelFunc = cancel

	ws.log.Info().Str("url", ws.url).Msg("Session WebSocket connected")
	return nil
}

func (ws *SessionWebSocket) disconnect() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.cancelFunc != nil {
		ws.cancelFunc()
	}
	if ws.conn != nil {
		_ = ws.conn.Close(websocket.StatusNormalClosure, "shutting down")
		ws.conn = nil
	}
}

func (ws *SessionWebSocket) readMessages(ctx context.Context) {
	for {
		select {
		case <-ws.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		ws.mu.RLock()
		conn := ws.conn
		ws.mu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			ws.log.Warn().Err(err).Msg("WebSocket read failed, reconnecting")
			ws.disconnect()
			go ws.reconnectLoop()
			return
		}

		var msg sessionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			ws.log.Warn().Err(err).Msg("Unparseable session push, ignoring")
			continue
		}

		ws.cacheMu.Lock()
		ws.lastStatus = domain.SessionStatus{Open: msg.IsOpen, Err: msg.Error}
		ws.lastUpdate = time.Now()
		ws.cacheMu.Unlock()

		ws.log.Debug().Bool("is_open", msg.IsOpen).Msg("Session state updated")
	}
}

// reconnectLoop retries with exponential backoff until connected or stopped
func (ws *SessionWebSocket) reconnectLoop() {
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		delay := time.Duration(math.Min(
			float64(baseReconnectDelay)*math.Pow(2, float64(attempt-1)),
			float64(maxReconnectDelay),
		))

		select {
		case <-ws.stopChan:
			return
		case <-time.After(delay):
		}

		ws.mu.RLock()
		stopped := ws.stopped
		ws.mu.RUnlock()
		if stopped {
			return
		}

		if err := ws.connect(); err != nil {
			ws.log.Warn().Err(err).Int("attempt", attempt).Msg("Reconnect failed")
			continue
		}

		ws.mu.RLock()
		ctx := ws.connCtx
		ws.mu.RUnlock()
		go ws.readMessages(ctx)
		return
	}

	ws.log.Error().Msg("Giving up on WebSocket reconnection, HTTP fallback stays in effect")
}
