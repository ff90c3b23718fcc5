package output

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/linuxmatters/bang/internal/detector"
)

const (
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second

	// clientQueueDepth is how many messages a client may fall behind before
	// it is disconnected
	clientQueueDepth = 256
)

// Message types sent to websocket clients
const (
	TypeHello = "hello"
	TypeFire  = "fire"
)

// HelloMessage is the first message on every connection
type HelloMessage struct {
	Type       string   `json:"type"`
	Channels   int      `json:"channels"`
	Messages   []string `json:"messages"`
	SampleRate int      `json:"sample_rate"`
	WindowSize int      `json:"window_size"`
}

// EventMessage carries one fire event
type EventMessage struct {
	Type    string `json:"type"`
	Channel int    `json:"channel"`
	Message string `json:"message"`
	Level   uint8  `json:"level"`
	Average uint32 `json:"average"`
	Window  uint64 `json:"window"`
}

// HealthResponse is the payload for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
	Events  uint64 `json:"events"`
	Dropped uint64 `json:"dropped_clients"`
}

type wsClient struct {
	id   string
	send chan any
}

// WebSocket broadcasts events to every client connected to /events. Slow
// clients are disconnected rather than allowed to hold up the detector.
type WebSocket struct {
	echo     *echo.Echo
	upgrader websocket.Upgrader
	hello    HelloMessage
	log      zerolog.Logger

	mu       sync.Mutex
	clients  map[*wsClient]struct{}
	closed   bool
	listener net.Listener

	events  atomic.Uint64
	dropped atomic.Uint64
}

// NewWebSocket builds the server and registers its routes. It does not listen
// until Start is called.
func NewWebSocket(hello HelloMessage, logger *zerolog.Logger) *WebSocket {
	hello.Type = TypeHello

	s := &WebSocket{
		hello:   hello,
		log:     zerolog.Nop(),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
	if logger != nil {
		s.log = logger.With().Str("component", "websocket").Logger()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Debug().Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.GET("/health", s.handleHealth)
	e.GET("/events", s.handleEvents)
	s.echo = e

	return s
}

// Handle serves h for GET requests on path alongside the event stream
func (s *WebSocket) Handle(path string, h http.Handler) {
	s.echo.GET(path, echo.WrapHandler(h))
}

// Start listens on addr and serves in the background. The listen error, if
// any, is returned synchronously.
func (s *WebSocket) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.echo.Listener = ln
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("server error")
		}
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")
	return nil
}

// Addr returns the bound address once Start has succeeded
func (s *WebSocket) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ClientCount returns the number of connected clients
func (s *WebSocket) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Emit implements Sink. It never blocks on the network.
func (s *WebSocket) Emit(events []detector.FireEvent) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("websocket sink is closed")
	}

	for _, ev := range events {
		msg := EventMessage{
			Type:    TypeFire,
			Channel: ev.Channel,
			Message: ev.Message,
			Level:   ev.Level,
			Average: ev.Average,
			Window:  ev.Window,
		}
		for c := range s.clients {
			select {
			case c.send <- msg:
			default:
				delete(s.clients, c)
				close(c.send)
				s.dropped.Add(1)
				s.log.Warn().Str("client", c.id).Msg("client too slow, disconnecting")
			}
		}
	}
	s.events.Add(uint64(len(events)))
	return nil
}

// Close disconnects every client and shuts the server down
func (s *WebSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("websocket shutdown: %w", err)
	}
	return nil
}

func (s *WebSocket) register() *wsClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	c := &wsClient{id: uuid.NewString(), send: make(chan any, clientQueueDepth)}
	s.clients[c] = struct{}{}
	return c
}

func (s *WebSocket) unregister(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *WebSocket) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Clients: s.ClientCount(),
		Events:  s.events.Load(),
		Dropped: s.dropped.Load(),
	})
}

func (s *WebSocket) handleEvents(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}
	defer conn.Close()

	client := s.register()
	if client == nil {
		return nil
	}
	defer s.unregister(client)

	log := s.log.With().Str("client", client.id).Str("remote", c.RealIP()).Logger()
	log.Debug().Msg("client connected")
	defer func() {
		log.Debug().Msg("client disconnected")
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(s.hello); err != nil {
		return nil
	}

	// Clients never send anything we act on; reading only notices the close.
	conn.SetReadLimit(1 << 10)
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(writeTimeout))
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				return nil
			}
		case <-gone:
			return nil
		}
	}
}
