package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const gatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Gateway opcodes.
const (
	opDispatch  = 0
	opHeartbeat = 1
	opIdentify  = 2
	opHello     = 10
	opHeartACK  = 11
)

// Intents the bot needs: guild messages plus message content.
const (
	intentGuildMessages  = 1 << 9
	intentMessageContent = 1 << 15
)

type gatewayPayload struct {
	Op   int             `json:"op"`
	Data json.RawMessage `json:"d"`
	Seq  *int            `json:"s"`
	Type string          `json:"t"`
}

// MessageHandler is invoked for every MESSAGE_CREATE dispatch.
type MessageHandler func(msg *Message)

// Session maintains the Discord gateway connection: identify, heartbeat
// and dispatch, with automatic reconnect on any failure.
type Session struct {
	token   string
	handler MessageHandler
	logger  *log.Logger

	gatewayURL    string
	reconnectWait time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	lastSeq *int

	readyOnce sync.Once
	readyCh   chan struct{}
	botUser   User
}

func NewSession(token string, handler MessageHandler, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.New(os.Stdout, "gateway: ", log.LstdFlags)
	}
	return &Session{
		token:         token,
		handler:       handler,
		logger:        logger,
		gatewayURL:    gatewayURL,
		reconnectWait: 5 * time.Second,
		readyCh:       make(chan struct{}),
	}
}

// Ready is closed once the first READY dispatch arrives.
func (s *Session) Ready() <-chan struct{} { return s.readyCh }

// BotUser returns the connected bot's user. Valid after Ready.
func (s *Session) BotUser() User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.botUser
}

// Run connects to the gateway and keeps the session alive until ctx is
// cancelled. Connection failures are logged and retried.
func (s *Session) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := s.connect(ctx); err != nil {
			s.logger.Printf("Error connecting to gateway: %v, will retry in %v", err, s.reconnectWait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.reconnectWait):
			}
			continue
		}

		err := s.readLoop(ctx)
		s.closeConn()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Printf("Gateway session ended: %v, will reconnect", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnectWait):
		}
	}
}

func (s *Session) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 45 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, s.gatewayURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("error connecting to gateway: %v (status: %s)", err, resp.Status)
		}
		return fmt.Errorf("error connecting to gateway: %v", err)
	}

	// The server opens with a hello carrying the heartbeat interval.
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var hello gatewayPayload
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return fmt.Errorf("error reading hello: %v", err)
	}
	conn.SetReadDeadline(time.Time{})
	if hello.Op != opHello {
		conn.Close()
		return fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var helloData struct {
		HeartbeatInterval int `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.Data, &helloData); err != nil {
		conn.Close()
		return fmt.Errorf("error parsing hello: %v", err)
	}

	identify := map[string]any{
		"op": opIdentify,
		"d": map[string]any{
			"token":   s.token,
			"intents": intentGuildMessages | intentMessageContent,
			"properties": map[string]string{
				"os":      "linux",
				"browser": "casewatch",
				"device":  "casewatch",
			},
		},
	}
	if err := conn.WriteJSON(identify); err != nil {
		conn.Close()
		return fmt.Errorf("error sending identify: %v", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	// Unblocks the read loop when the context is cancelled.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go s.heartbeatLoop(ctx, conn, time.Duration(helloData.HeartbeatInterval)*time.Millisecond)
	return nil
}

func (s *Session) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	if interval <= 0 {
		interval = 41250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			seq := s.lastSeq
			current := s.conn
			s.mu.Unlock()
			if current != conn {
				return
			}
			beat := map[string]any{"op": opHeartbeat, "d": seq}
			if err := conn.WriteJSON(beat); err != nil {
				s.logger.Printf("Error sending heartbeat: %v", err)
				conn.Close()
				return
			}
		}
	}
}

func (s *Session) readLoop(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	for {
		var payload gatewayPayload
		if err := conn.ReadJSON(&payload); err != nil {
			return fmt.Errorf("error reading gateway payload: %v", err)
		}

		if payload.Seq != nil {
			s.mu.Lock()
			s.lastSeq = payload.Seq
			s.mu.Unlock()
		}

		switch payload.Op {
		case opDispatch:
			s.dispatch(payload)
		case opHeartbeat:
			// Server requested an immediate heartbeat.
			s.mu.Lock()
			seq := s.lastSeq
			s.mu.Unlock()
			if err := conn.WriteJSON(map[string]any{"op": opHeartbeat, "d": seq}); err != nil {
				return fmt.Errorf("error answering heartbeat request: %v", err)
			}
		case opHeartACK:
			// Nothing to do.
		default:
			s.logger.Printf("Ignoring gateway op %d", payload.Op)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Session) dispatch(payload gatewayPayload) {
	switch payload.Type {
	case "READY":
		var ready struct {
			User User `json:"user"`
		}
		if err := json.Unmarshal(payload.Data, &ready); err != nil {
			s.logger.Printf("Error parsing READY: %v", err)
			return
		}
		s.mu.Lock()
		s.botUser = ready.User
		s.mu.Unlock()
		s.logger.Printf("Gateway ready as %s", ready.User.Username)
		s.readyOnce.Do(func() { close(s.readyCh) })
	case "MESSAGE_CREATE":
		var msg Message
		if err := json.Unmarshal(payload.Data, &msg); err != nil {
			s.logger.Printf("Error parsing MESSAGE_CREATE: %v", err)
			return
		}
		if s.handler != nil {
			s.handler(&msg)
		}
	}
}

func (s *Session) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
