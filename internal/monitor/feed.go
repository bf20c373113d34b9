package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Live transfer feed — websocket subscription with reconnect
// ---------------------------------------------------------------------------

// FeedConfig configures the websocket transfer feed.
type FeedConfig struct {
	// URL is the websocket endpoint. Empty disables the feed.
	URL string `yaml:"url"`

	// ReconnectDelay is the initial backoff after a failed connect; it
	// doubles per attempt up to MaxReconnectDelay.
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`

	// PingInterval keeps idle connections alive.
	PingInterval time.Duration `yaml:"ping_interval"`

	// ReadTimeout bounds how long a read may sit without traffic.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// Buffer is the event channel capacity; a full channel drops events.
	Buffer int `yaml:"buffer"`
}

// DefaultFeedConfig returns production defaults.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		Buffer:            256,
	}
}

func (c FeedConfig) withDefaults() FeedConfig {
	def := DefaultFeedConfig()
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = def.ReconnectDelay
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.Buffer <= 0 {
		c.Buffer = def.Buffer
	}
	return c
}

// subscribeRequest is the frame sent after each (re)connect.
type subscribeRequest struct {
	Op      string   `json:"op"`
	Wallets []string `json:"wallets"`
}

// feedMessage is one inbound frame. Only type "transfer" carries an event;
// everything else is treated as a subscription acknowledgement.
type feedMessage struct {
	Type  string    `json:"type"`
	Event FeedEvent `json:"event"`
}

// LiveFeed is a websocket client for an indexer's transfer push channel.
// It owns the connection lifecycle: reconnects with backoff and
// resubscribes after every connect. The event channel closes only when the
// context ends.
type LiveFeed struct {
	cfg FeedConfig
	log zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed atomic.Bool

	messages   atomic.Int64
	events     atomic.Int64
	reconnects atomic.Int64
	dropped    atomic.Int64
	connected  atomic.Bool
}

// NewLiveFeed creates a feed client for the given endpoint.
func NewLiveFeed(cfg FeedConfig, log zerolog.Logger) *LiveFeed {
	return &LiveFeed{
		cfg: cfg.withDefaults(),
		log: log.With().Str("component", "feed").Logger(),
	}
}

// SubscribeTransfers starts the feed for the given wallets. The connection
// is established in the background; dial failures retry with backoff.
func (f *LiveFeed) SubscribeTransfers(ctx context.Context, wallets []string) (<-chan FeedEvent, error) {
	if f.cfg.URL == "" {
		return nil, errors.New("feed: no websocket endpoint configured")
	}
	ch := make(chan FeedEvent, f.cfg.Buffer)
	go f.runLoop(ctx, wallets, ch)
	return ch, nil
}

func (f *LiveFeed) runLoop(ctx context.Context, wallets []string, ch chan FeedEvent) {
	defer func() {
		f.disconnect()
		if f.closed.CompareAndSwap(false, true) {
			close(ch)
		}
	}()

	delay := f.cfg.ReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.connect(ctx); err != nil {
			f.reconnects.Add(1)
			f.log.Warn().Err(err).Dur("retry_in", delay).Msg("feed: connect failed")
			select {
			case <-time.After(delay):
				delay *= 2
				if delay > f.cfg.MaxReconnectDelay {
					delay = f.cfg.MaxReconnectDelay
				}
			case <-ctx.Done():
				return
			}
			continue
		}
		delay = f.cfg.ReconnectDelay

		if err := f.subscribe(wallets); err != nil {
			f.log.Warn().Err(err).Msg("feed: subscribe failed")
			f.disconnect()
			continue
		}

		f.readLoop(ctx, ch)
		f.disconnect()
	}
}

func (f *LiveFeed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, http.Header{})
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	f.connected.Store(true)

	f.log.Info().Str("endpoint", f.cfg.URL).Msg("feed: connected")
	return nil
}

func (f *LiveFeed) disconnect() {
	f.mu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.mu.Unlock()
	f.connected.Store(false)
}

func (f *LiveFeed) subscribe(wallets []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return errors.New("feed: not connected")
	}
	return f.conn.WriteJSON(subscribeRequest{Op: "subscribe", Wallets: wallets})
}

func (f *LiveFeed) readLoop(ctx context.Context, ch chan FeedEvent) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return
	}

	// Unblock a pending read when the context ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	pingTicker := time.NewTicker(f.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.log.Debug().Err(err).Msg("feed: ping failed")
				return
			}
		default:
		}

		conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				f.reconnects.Add(1)
				f.log.Warn().Err(err).Msg("feed: read error, reconnecting")
			}
			f.connected.Store(false)
			return
		}

		f.messages.Add(1)
		f.handleMessage(message, ch)
	}
}

func (f *LiveFeed) handleMessage(data []byte, ch chan FeedEvent) {
	var msg feedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Type != "transfer" {
		f.log.Debug().Str("type", msg.Type).Msg("feed: control frame")
		return
	}
	if msg.Event.Wallet == "" || msg.Event.Transfer.TxHash == "" {
		return
	}

	select {
	case ch <- msg.Event:
		f.events.Add(1)
	default:
		f.dropped.Add(1)
		f.log.Warn().Msg("feed: event channel full, dropping")
	}
}

// FeedStats reports connection health and traffic counters.
type FeedStats struct {
	Connected  bool  `json:"connected"`
	Messages   int64 `json:"messages"`
	Events     int64 `json:"events"`
	Reconnects int64 `json:"reconnects"`
	Dropped    int64 `json:"dropped"`
}

func (f *LiveFeed) Stats() FeedStats {
	return FeedStats{
		Connected:  f.connected.Load(),
		Messages:   f.messages.Load(),
		Events:     f.events.Load(),
		Reconnects: f.reconnects.Load(),
		Dropped:    f.dropped.Load(),
	}
}

var _ TransferFeed = (*LiveFeed)(nil)
