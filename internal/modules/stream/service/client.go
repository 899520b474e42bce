package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"pinbar_scanner/internal/modules/metrics"
)

// State — состояние соединения.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Protocol — то, что клиенту нужно знать о бирже. exchange.Venue ему удовлетворяет.
type Protocol interface {
	StreamURL() string
	Ping() (messageType int, data []byte)
	Route(msg []byte) (topic string, payload []byte, ok bool)
	SubscribeRequest(topic string) ([]byte, error)
}

// Handler получает payload push-кадра своего topic. Вызывается из read-цикла.
type Handler func(payload []byte)

type Config struct {
	PingInterval     time.Duration
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	return c
}

type subscription struct {
	request []byte
	handler Handler
}

// Client — одно websocket-соединение с биржей. Подписки живут отдельно от соединения
// и переотправляются после каждого реконнекта.
type Client struct {
	cfg    Config
	proto  Protocol
	cache  *Cache
	dialer *websocket.Dialer
	log    *zap.Logger
	m      *metrics.Metrics

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	subs    map[string]*subscription
	order   []string
	onState []func(State)

	// gorilla допускает только одного писателя на соединение
	writeMu sync.Mutex
}

func NewClient(cfg Config, proto Protocol, cache *Cache, log *zap.Logger, m *metrics.Metrics) *Client {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Client{
		cfg:   cfg,
		proto: proto,
		cache: cache,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		log:  log.Named("stream"),
		m:    m,
		subs: make(map[string]*subscription),
	}
}

func (c *Client) Cache() *Cache { return c.cache }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange регистрирует слушателя переходов состояния (health, метрики).
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onState = append(c.onState, fn)
	c.mu.Unlock()
}

// Topics — подписки в порядке регистрации.
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Subscribe регистрирует handler для topic. Повторный вызов для того же topic
// заменяет handler и ничего не отправляет. Если соединение уже поднято, запрос уходит сразу,
// иначе — при следующем подключении.
func (c *Client) Subscribe(topic string, h Handler) error {
	if h == nil {
		return errors.Errorf("stream: nil handler for %s", topic)
	}
	req, err := c.proto.SubscribeRequest(topic)
	if err != nil {
		return errors.Wrapf(err, "stream: subscribe request for %s", topic)
	}

	c.mu.Lock()
	if s, ok := c.subs[topic]; ok {
		s.handler = h
		c.mu.Unlock()
		return nil
	}
	c.subs[topic] = &subscription{request: req, handler: h}
	c.order = append(c.order, topic)
	var conn *websocket.Conn
	if c.state == StateConnected {
		conn = c.conn
	}
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := c.write(conn, websocket.TextMessage, req); err != nil {
		// read-цикл увидит обрыв и переподпишет всё после реконнекта
		c.log.Warn("subscribe write failed", zap.String("topic", topic), zap.Error(err))
	}
	return nil
}

// Run держит соединение до отмены ctx: connect → read → при обрыве пауза ReconnectDelay → снова.
func (c *Client) Run(ctx context.Context) {
	url := c.proto.StreamURL()
	first := true
	for {
		if ctx.Err() != nil {
			return
		}
		if !first {
			c.m.StreamReconnects.Inc()
		}
		first = false

		err := c.session(ctx, url)
		if ctx.Err() != nil {
			c.log.Info("stream stopped", zap.String("url", url))
			return
		}
		c.log.Warn("stream connection lost, reconnecting",
			zap.String("url", url),
			zap.Duration("backoff", c.cfg.ReconnectDelay),
			zap.Error(err),
		)

		t := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// session — одно соединение от dial до ошибки чтения.
func (c *Client) session(ctx context.Context, url string) error {
	c.setState(StateConnecting)

	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		c.setState(StateDisconnected)
		return errors.Wrap(err, "dial")
	}

	replay := c.attach(conn)
	c.log.Info("stream connected", zap.String("url", url), zap.Int("topics", len(replay)))

	for _, req := range replay {
		if err := c.write(conn, websocket.TextMessage, req); err != nil {
			c.detach(conn)
			return errors.Wrap(err, "resubscribe")
		}
	}

	done := make(chan struct{})
	defer close(done)
	go c.keepAlive(conn, done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.detach(conn)
			return errors.Wrap(err, "read")
		}
		c.dispatch(msg)
	}
}

// attach переводит клиента в CONNECTED и снимает снимок подписок в одной критической секции:
// Subscribe, увидевший CONNECTED, шлёт запрос сам, остальные попадут в снимок.
func (c *Client) attach(conn *websocket.Conn) [][]byte {
	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	replay := make([][]byte, 0, len(c.order))
	for _, topic := range c.order {
		replay = append(replay, c.subs[topic].request)
	}
	listeners := c.listeners()
	c.mu.Unlock()

	c.fire(listeners, StateConnected)
	return replay
}

func (c *Client) detach(conn *websocket.Conn) {
	_ = conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.state = StateDisconnected
	listeners := c.listeners()
	c.mu.Unlock()

	if c.cache != nil {
		c.cache.Invalidate()
	}
	c.fire(listeners, StateDisconnected)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	listeners := c.listeners()
	c.mu.Unlock()
	c.fire(listeners, s)
}

func (c *Client) listeners() []func(State) {
	out := make([]func(State), len(c.onState))
	copy(out, c.onState)
	return out
}

func (c *Client) fire(listeners []func(State), s State) {
	c.m.StreamState.Set(float64(s))
	for _, fn := range listeners {
		fn(s)
	}
}

func (c *Client) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(c.cfg.PingInterval)
	defer t.Stop()
	mt, ping := c.proto.Ping()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			// ошибку записи увидит read-цикл
			if err := c.write(conn, mt, ping); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(conn *websocket.Conn, mt int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	return conn.WriteMessage(mt, data)
}

// dispatch — кадр без topic или с неизвестным topic молча пропускается.
func (c *Client) dispatch(msg []byte) {
	topic, payload, ok := c.proto.Route(msg)
	if !ok {
		c.m.StreamMessages.WithLabelValues("false").Inc()
		return
	}
	c.mu.Lock()
	s, found := c.subs[topic]
	var h Handler
	if found {
		h = s.handler
	}
	c.mu.Unlock()
	if h == nil {
		c.m.StreamMessages.WithLabelValues("false").Inc()
		return
	}
	c.m.StreamMessages.WithLabelValues("true").Inc()

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("stream handler panic", zap.String("topic", topic), zap.Any("panic", r))
		}
	}()
	h(payload)
}
