package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var (
	ErrNotConnected = errors.New("mqtt session not connected")
	ErrStopped      = errors.New("mqtt session stopped")
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultInboxSize      = 32
)

type Options struct {
	// Name labels the session in logs ("local", "cloud").
	Name     string
	Broker   string
	Port     int
	ClientID string
	Username string
	Password string

	// SubscribeTopic is subscribed after every successful handshake. Empty
	// means the session is publish-only.
	SubscribeTopic string
	Handler        InboundHandler
	InboxSize      int

	ConnectTimeout time.Duration
	Retry          RetryPolicy
}

// Session is one broker connection driven by its owner: nothing reconnects in
// the background. EnsureConnected moves it from disconnected to connected,
// a lost connection moves it back.
type Session struct {
	client mqtt.Client
	opts   Options
	url    string
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool

	inbox chan Message
	// timer overrides the backoff wait timer; nil uses a real one.
	timer backoff.Timer

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewSession(opts Options, logger *slog.Logger) *Session {
	s := newSession(opts, logger)

	o := mqtt.NewClientOptions()
	o.AddBroker(s.url)
	o.SetClientID(opts.ClientID)
	if opts.Username != "" {
		o.SetUsername(opts.Username)
		o.SetPassword(opts.Password)
	}

	o.SetCleanSession(true)

	// Reconnection belongs to EnsureConnected.
	o.SetAutoReconnect(false)
	o.SetConnectRetry(false)
	o.SetConnectTimeout(s.opts.ConnectTimeout)

	o.SetKeepAlive(30 * time.Second)
	o.SetPingTimeout(10 * time.Second)

	o.SetConnectionLostHandler(s.onConnectionLost)

	s.client = mqtt.NewClient(o)
	return s
}

func newSession(opts Options, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}
	if opts.Handler == nil {
		opts.Handler = Discard{Logger: logger}
	}
	if opts.Name == "" {
		opts.Name = "mqtt"
	}
	return &Session{
		opts:   opts,
		url:    brokerURL(opts.Broker, opts.Port),
		logger: logger.With("session", opts.Name),
		inbox:  make(chan Message, opts.InboxSize),
		stopCh: make(chan struct{}),
	}
}

func brokerURL(broker string, port int) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return fmt.Sprintf("tcp://%s:%d", broker, port)
}

func (s *Session) Name() string { return s.opts.Name }

// Broker is the broker URL the session dials.
func (s *Session) Broker() string { return s.url }

// EnsureConnected returns at once when the session is live. Otherwise it
// performs handshakes, waiting between failures as the retry policy says,
// until one succeeds, the policy gives up, or ctx is done. A successful
// handshake is followed by exactly one subscribe to the inbound topic.
func (s *Session) EnsureConnected(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}

	if s.IsConnected() {
		return nil
	}

	attempt := 0
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		s.logger.Info("connecting to mqtt broker", "broker", s.url, "attempt", attempt)
		return s.handshake(ctx)
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("mqtt connect failed, retrying",
			"broker", s.url,
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotifyWithTimer(op, s.opts.Retry.backOff(ctx), notify, s.timer); err != nil {
		return fmt.Errorf("mqtt connect %s (%d attempts): %w", s.url, attempt, err)
	}
	return nil
}

func (s *Session) handshake(ctx context.Context) error {
	if err := waitToken(ctx, s.client.Connect(), s.opts.ConnectTimeout); err != nil {
		// Drop a half-open attempt so the next one starts clean.
		s.client.Disconnect(0)
		return fmt.Errorf("connect: %w", err)
	}

	if topic := s.opts.SubscribeTopic; topic != "" {
		if err := waitToken(ctx, s.client.Subscribe(topic, 0, s.onMessage), s.opts.ConnectTimeout); err != nil {
			s.client.Disconnect(0)
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		s.logger.Info("subscribed to mqtt topic", "topic", topic)
	}

	s.setConnected(true)
	s.logger.Info("mqtt connected", "broker", s.url)
	return nil
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("no response within %v", timeout)
	}
}

// Publish hands payload to the transport at QoS 0 and returns without
// waiting for delivery. Only a failure the transport reports synchronously is
// returned.
func (s *Session) Publish(topic string, payload []byte) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}

	token := s.client.Publish(topic, 0, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	default:
	}

	s.logger.Debug("published", "topic", topic, "payload", string(payload))
	return nil
}

// Pump hands every message queued so far to the inbound handler, on the
// caller's goroutine. It returns the number of messages handled.
func (s *Session) Pump() int {
	n := len(s.inbox)
	for i := 0; i < n; i++ {
		s.opts.Handler.HandleInbound(<-s.inbox)
	}
	return n
}

func (s *Session) onMessage(_ mqtt.Client, msg mqtt.Message) {
	m := Message{
		Topic:   msg.Topic(),
		Payload: append([]byte(nil), msg.Payload()...),
	}
	select {
	case s.inbox <- m:
	default:
		s.logger.Warn("mqtt inbox full, dropping message", "topic", m.Topic, "size", len(m.Payload))
	}
}

func (s *Session) onConnectionLost(_ mqtt.Client, err error) {
	s.setConnected(false)
	s.logger.Warn("mqtt connection lost", "broker", s.url, "error", err)
}

func (s *Session) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the session and closes the connection. Idempotent; after
// it, EnsureConnected returns ErrStopped.
func (s *Session) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.opts.SubscribeTopic != "" && s.IsConnected() {
		token := s.client.Unsubscribe(s.opts.SubscribeTopic)
		token.WaitTimeout(2 * time.Second)
	}

	s.client.Disconnect(250)
	s.setConnected(false)
	s.logger.Info("mqtt disconnected")
}

func (s *Session) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
