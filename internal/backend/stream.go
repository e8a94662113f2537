package backend

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"agentboard/internal/domain"
)

// Event names subscribers can attach to. Connected and Disconnected are
// synthesized locally around the socket lifecycle.
const (
	EventConnected      = "connected"
	EventDisconnected   = "disconnected"
	EventAgentMessage   = "agent_message"
	EventWorkflowStatus = "workflow_status"
	EventTestResponse   = "test_response"
)

var ErrStreamClosed = errors.New("stream is not connected")

type StreamConfig struct {
	URL          string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	PingInterval time.Duration
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.URL == "" {
		c.URL = "ws://localhost:8000/ws"
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = time.Second
	}
	if c.ReconnectMax < c.ReconnectMin {
		c.ReconnectMax = 30 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	return c
}

// StreamEvent is one decoded socket envelope. Which fields are set depends
// on Name; each underlying socket message produces at most one event.
type StreamEvent struct {
	Name      string
	From      string
	To        string
	Content   string
	Status    string
	Timestamp time.Time
}

func (e StreamEvent) AgentMessage() domain.AgentMessage {
	return domain.AgentMessage{
		From:      e.From,
		To:        e.To,
		Content:   e.Content,
		Timestamp: e.Timestamp,
	}
}

type streamEnvelope struct {
	Type      string `json:"type"`
	FromAgent string `json:"from_agent"`
	ToAgent   string `json:"to_agent"`
	Content   string `json:"content"`
	Message   string `json:"message"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Stream keeps a WebSocket to the backend alive and fans decoded events
// out to subscribers. Handlers run on the stream goroutine; UI consumers
// must hand off to their own loop.
type Stream struct {
	cfg    StreamConfig
	logger *log.Logger

	mu     sync.Mutex
	subs   map[string]map[int]func(StreamEvent)
	nextID int

	connMu sync.Mutex
	conn   *websocket.Conn
}

func NewStream(cfg StreamConfig, logger *log.Logger) *Stream {
	if logger == nil {
		logger = log.Default()
	}
	return &Stream{
		cfg:    cfg.withDefaults(),
		logger: logger,
		subs:   make(map[string]map[int]func(StreamEvent)),
	}
}

// Subscribe attaches a handler to a named event and returns a token for
// Unsubscribe.
func (s *Stream) Subscribe(event string, handler func(StreamEvent)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	if s.subs[event] == nil {
		s.subs[event] = make(map[int]func(StreamEvent))
	}
	s.subs[event][s.nextID] = handler
	return s.nextID
}

func (s *Stream) Unsubscribe(event string, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	handlers, ok := s.subs[event]
	if !ok {
		return
	}
	delete(handlers, id)
	if len(handlers) == 0 {
		delete(s.subs, event)
	}
}

// SendTest emits the diagnostic frame the backend echoes back.
func (s *Stream) SendTest(message string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return ErrStreamClosed
	}
	return s.conn.WriteJSON(map[string]string{"type": "test", "message": message})
}

// Run dials and serves the socket until ctx ends, redialing with backoff
// that doubles up to ReconnectMax and resets after a successful connect.
func (s *Stream) Run(ctx context.Context) error {
	backoff := s.cfg.ReconnectMin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, nil)
		if err == nil {
			backoff = s.cfg.ReconnectMin
			s.setConn(conn)
			s.dispatch(StreamEvent{Name: EventConnected})

			err = s.serve(ctx, conn)
			s.setConn(nil)
			s.dispatch(StreamEvent{Name: EventDisconnected})
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Printf("stream disconnected url=%s err=%v", s.cfg.URL, err)
		} else {
			s.logger.Printf("stream dial failed url=%s err=%v", s.cfg.URL, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.cfg.ReconnectMax {
			backoff = s.cfg.ReconnectMax
		}
	}
}

func (s *Stream) serve(ctx context.Context, conn *websocket.Conn) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return err
			}
			if ev, ok := s.decode(data); ok {
				s.dispatch(ev)
			}
		}
	})
	g.Go(func() error {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return ctx.Err()
			case <-ticker.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return err
				}
			}
		}
	})
	return g.Wait()
}

func (s *Stream) setConn(conn *websocket.Conn) {
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
}

// decode validates one socket message. Malformed envelopes are logged and
// dropped rather than trusted.
func (s *Stream) decode(data []byte) (StreamEvent, bool) {
	var env streamEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Printf("stream envelope rejected err=%v", err)
		return StreamEvent{}, false
	}
	ev := StreamEvent{
		From:      env.FromAgent,
		To:        env.ToAgent,
		Content:   env.Content,
		Status:    env.Status,
		Timestamp: parseTimestamp(env.Timestamp),
	}
	if ev.Content == "" {
		ev.Content = env.Message
	}
	switch env.Type {
	case "agent_message":
		if ev.From == "" || ev.Content == "" {
			s.logger.Printf("stream envelope rejected type=agent_message reason=missing fields")
			return StreamEvent{}, false
		}
		ev.Name = EventAgentMessage
	case "workflow_status":
		if ev.Status == "" {
			s.logger.Printf("stream envelope rejected type=workflow_status reason=missing status")
			return StreamEvent{}, false
		}
		ev.Name = EventWorkflowStatus
	case "test", "test_response":
		ev.Name = EventTestResponse
	case "":
		s.logger.Printf("stream envelope rejected reason=missing type")
		return StreamEvent{}, false
	default:
		s.logger.Printf("stream envelope dropped type=%s", env.Type)
		return StreamEvent{}, false
	}
	return ev, true
}

func (s *Stream) dispatch(ev StreamEvent) {
	s.mu.Lock()
	handlers := make([]func(StreamEvent), 0, len(s.subs[ev.Name]))
	for _, h := range s.subs[ev.Name] {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}
