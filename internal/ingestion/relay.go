package ingestion

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/sugawarayuuta/sonnet"

	"pumpfun-engine/internal/logging"
	"pumpfun-engine/internal/observability"
)

// DefaultRelayURL is pumpportal's data feed.
const DefaultRelayURL = "wss://pumpportal.fun/api/data"

const sourceRelay = "relay"

// Relay subscription methods.
const (
	methodSubscribeNewToken       = "subscribeNewToken"
	methodUnsubscribeNewToken     = "unsubscribeNewToken"
	methodSubscribeTokenTrade     = "subscribeTokenTrade"
	methodUnsubscribeTokenTrade   = "unsubscribeTokenTrade"
	methodSubscribeAccountTrade   = "subscribeAccountTrade"
	methodUnsubscribeAccountTrade = "unsubscribeAccountTrade"
)

type relayRequest struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys,omitempty"`
}

// RelayListenerOptions configures a RelayListener.
type RelayListenerOptions struct {
	URL               string
	Publisher         Publisher
	Dialer            *websocket.Dialer
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	Logger            *logrus.Entry
	Now               func() time.Time
}

// RelayListener consumes the relay's push feed. Subscriptions are kept as
// desired state and replayed on every reconnect.
type RelayListener struct {
	url               string
	publisher         Publisher
	dialer            *websocket.Dialer
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	logger            *logrus.Entry
	now               func() time.Time

	mu           sync.Mutex
	conn         *websocket.Conn
	newTokens    bool
	tokenTrades  map[string]struct{}
	accountTrade map[string]struct{}
}

// NewRelayListener creates a RelayListener.
func NewRelayListener(opts RelayListenerOptions) *RelayListener {
	if opts.URL == "" {
		opts.URL = DefaultRelayURL
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.MaxReconnectDelay < opts.ReconnectDelay {
		opts.MaxReconnectDelay = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RelayListener{
		url:               opts.URL,
		publisher:         opts.Publisher,
		dialer:            opts.Dialer,
		reconnectDelay:    opts.ReconnectDelay,
		maxReconnectDelay: opts.MaxReconnectDelay,
		logger:            logging.OrDefault(opts.Logger, "ingestion.relay"),
		now:               opts.Now,
		tokenTrades:       make(map[string]struct{}),
		accountTrade:      make(map[string]struct{}),
	}
}

// SubscribeNewToken subscribes to token creations.
func (l *RelayListener) SubscribeNewToken() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.newTokens = true
	return l.sendLocked(relayRequest{Method: methodSubscribeNewToken})
}

// UnsubscribeNewToken stops token creation events.
func (l *RelayListener) UnsubscribeNewToken() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.newTokens = false
	return l.sendLocked(relayRequest{Method: methodUnsubscribeNewToken})
}

// SubscribeTokenTrade subscribes to trades on the given mints.
func (l *RelayListener) SubscribeTokenTrade(mints ...string) error {
	return l.update(l.tokenTrades, methodSubscribeTokenTrade, mints, true)
}

// UnsubscribeTokenTrade stops trades on the given mints.
func (l *RelayListener) UnsubscribeTokenTrade(mints ...string) error {
	return l.update(l.tokenTrades, methodUnsubscribeTokenTrade, mints, false)
}

// SubscribeAccountTrade subscribes to trades made by the given wallets.
func (l *RelayListener) SubscribeAccountTrade(accounts ...string) error {
	return l.update(l.accountTrade, methodSubscribeAccountTrade, accounts, true)
}

// UnsubscribeAccountTrade stops trades made by the given wallets.
func (l *RelayListener) UnsubscribeAccountTrade(accounts ...string) error {
	return l.update(l.accountTrade, methodUnsubscribeAccountTrade, accounts, false)
}

func (l *RelayListener) update(set map[string]struct{}, method string, keys []string, add bool) error {
	if len(keys) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		if add {
			set[k] = struct{}{}
		} else {
			delete(set, k)
		}
	}
	return l.sendLocked(relayRequest{Method: method, Keys: keys})
}

// sendLocked writes one request. l.mu serializes writers. Without a
// connection the request waits for the replay on the next connect.
func (l *RelayListener) sendLocked(req relayRequest) error {
	if l.conn == nil {
		return nil
	}
	data, err := sonnet.Marshal(req)
	if err != nil {
		return err
	}
	if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("relay %s: %w", req.Method, err)
	}
	return nil
}

// replayLocked re-sends every desired subscription on a fresh connection.
func (l *RelayListener) replayLocked() error {
	if l.newTokens {
		if err := l.sendLocked(relayRequest{Method: methodSubscribeNewToken}); err != nil {
			return err
		}
	}
	if keys := sortedKeys(l.tokenTrades); len(keys) > 0 {
		if err := l.sendLocked(relayRequest{Method: methodSubscribeTokenTrade, Keys: keys}); err != nil {
			return err
		}
	}
	if keys := sortedKeys(l.accountTrade); len(keys) > 0 {
		if err := l.sendLocked(relayRequest{Method: methodSubscribeAccountTrade, Keys: keys}); err != nil {
			return err
		}
	}
	return nil
}

// Connected reports whether a feed connection is currently open.
func (l *RelayListener) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// Run connects, reconnecting with exponential backoff, until ctx is done.
func (l *RelayListener) Run(ctx context.Context) error {
	delay := l.reconnectDelay
	for {
		conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
		if err == nil {
			delay = l.reconnectDelay
			err = l.serve(ctx, conn)
		}
		if ctx.Err() != nil {
			return nil
		}
		l.logger.WithError(err).WithField("retry_in", delay).Warn("relay feed disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > l.maxReconnectDelay {
			delay = l.maxReconnectDelay
		}
	}
}

// serve owns conn until it fails or ctx is done.
func (l *RelayListener) serve(ctx context.Context, conn *websocket.Conn) error {
	l.mu.Lock()
	l.conn = conn
	err := l.replayLocked()
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
		conn.Close()
	}()
	if err != nil {
		return err
	}
	l.logger.WithField("url", l.url).Info("relay feed connected")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		l.handle(ctx, data)
	}
}

func (l *RelayListener) handle(ctx context.Context, data []byte) {
	observability.RecordNotification(sourceRelay)

	msg, err := ParseRelayMessage(data, l.now())
	if err != nil {
		observability.RecordEventError(sourceRelay, "parse")
		l.logger.WithError(err).Debug("ignoring relay message")
		return
	}

	switch msg.Kind {
	case RelayKindAck:
		if msg.Ack.Error != "" {
			l.logger.WithField("error", msg.Ack.Error).Warn("relay rejected request")
			return
		}
		l.logger.WithField("message", msg.Ack.Message).Debug("relay ack")
	case RelayKindCreate:
		if !msg.Create.OnCurve() {
			return
		}
		err = publishMint(ctx, l.publisher, msg.Create.MintEvent())
	case RelayKindTrade:
		if !msg.Trade.OnCurve() {
			return
		}
		err = publishTrade(ctx, l.publisher, msg.Trade.TradeEvent())
	}
	if err != nil {
		observability.RecordEventError(sourceRelay, "publish")
		l.logger.WithError(err).Warn("publish failed")
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
