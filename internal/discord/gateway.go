package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Gateway opcodes.
const (
	opDispatch     = 0
	opHeartbeat    = 1
	opIdentify     = 2
	opHello        = 10
	opHeartbeatACK = 11
)

// Gateway intents. The bot needs guild and DM messages plus the
// message content itself.
const (
	intentGuildMessages  = 1 << 9
	intentDirectMessages = 1 << 12
	intentMessageContent = 1 << 15

	// DefaultIntents covers everything the bridge consumes.
	DefaultIntents = intentGuildMessages | intentDirectMessages | intentMessageContent
)

const defaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// reconnectDelay spaces out redial attempts after the connection drops.
const reconnectDelay = 5 * time.Second

// payload is the gateway wire frame.
type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

// Gateway maintains a WebSocket connection to the Discord gateway and
// delivers MESSAGE_CREATE events on a channel. Other dispatch types
// are logged and dropped.
type Gateway struct {
	url     string
	token   string
	intents int
	logger  *slog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	seq    int64
	seqMu  sync.Mutex

	messages chan *Message
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayURL overrides the gateway endpoint, mainly for tests.
func WithGatewayURL(u string) GatewayOption {
	return func(g *Gateway) { g.url = u }
}

// WithGatewayLogger sets the logger.
func WithGatewayLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway creates a gateway client for the given bot token.
func NewGateway(token string, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		url:      defaultGatewayURL,
		token:    token,
		intents:  DefaultIntents,
		logger:   slog.Default(),
		messages: make(chan *Message, 64),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Messages returns the channel of inbound MESSAGE_CREATE events.
func (g *Gateway) Messages() <-chan *Message {
	return g.messages
}

// Run connects to the gateway and redials after disconnects until ctx
// is cancelled.
func (g *Gateway) Run(ctx context.Context) {
	for {
		if err := g.connect(ctx); err != nil {
			g.logger.Error("gateway connect failed", "error", err)
		} else {
			g.readLoop(ctx)
		}

		select {
		case <-ctx.Done():
			g.Close()
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// connect dials the gateway, performs the hello/identify handshake,
// and starts the heartbeat loop.
func (g *Gateway) connect(ctx context.Context) error {
	g.logger.Info("connecting to discord gateway", "url", g.url)

	dialer := websocket.Dialer{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
	}
	conn, _, err := dialer.DialContext(ctx, g.url, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}

	var hello payload
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		conn.Close()
		return fmt.Errorf("expected hello opcode, got %d", hello.Op)
	}
	var hd helloData
	if err := json.Unmarshal(hello.D, &hd); err != nil {
		conn.Close()
		return fmt.Errorf("parse hello: %w", err)
	}

	g.connMu.Lock()
	g.conn = conn
	g.connMu.Unlock()

	identify := map[string]any{
		"op": opIdentify,
		"d": map[string]any{
			"token":   g.token,
			"intents": g.intents,
			"properties": map[string]string{
				"os":      runtime.GOOS,
				"browser": "cinematic",
				"device":  "cinematic",
			},
		},
	}
	if err := g.writeJSON(identify); err != nil {
		g.Close()
		return fmt.Errorf("send identify: %w", err)
	}

	go g.heartbeatLoop(ctx, conn, time.Duration(hd.HeartbeatInterval)*time.Millisecond)

	g.logger.Info("discord gateway connected",
		"heartbeat_interval_ms", hd.HeartbeatInterval,
	)
	return nil
}

// Close tears down the current connection. Run handles redialing.
func (g *Gateway) Close() error {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	if g.conn != nil {
		err := g.conn.Close()
		g.conn = nil
		return err
	}
	return nil
}

func (g *Gateway) writeJSON(v any) error {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	if g.conn == nil {
		return fmt.Errorf("gateway not connected")
	}
	return g.conn.WriteJSON(v)
}

func (g *Gateway) lastSeq() *int64 {
	g.seqMu.Lock()
	defer g.seqMu.Unlock()
	if g.seq == 0 {
		return nil
	}
	s := g.seq
	return &s
}

// heartbeatLoop sends heartbeats at the server-provided interval until
// the connection is replaced or ctx is cancelled.
func (g *Gateway) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.connMu.Lock()
			current := g.conn
			g.connMu.Unlock()
			if current != conn {
				return
			}

			beat := map[string]any{"op": opHeartbeat, "d": g.lastSeq()}
			if err := g.writeJSON(beat); err != nil {
				g.logger.Warn("gateway heartbeat failed", "error", err)
				return
			}
		}
	}
}

// readLoop consumes gateway frames until the connection drops, pushing
// MESSAGE_CREATE events to the messages channel.
func (g *Gateway) readLoop(ctx context.Context) {
	for {
		g.connMu.Lock()
		conn := g.conn
		g.connMu.Unlock()
		if conn == nil {
			return
		}

		var frame payload
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Info("gateway closed normally")
			} else {
				g.logger.Error("gateway read error, connection lost", "error", err)
			}
			g.Close()
			return
		}

		if frame.S != nil {
			g.seqMu.Lock()
			g.seq = *frame.S
			g.seqMu.Unlock()
		}

		switch frame.Op {
		case opDispatch:
			g.dispatch(frame)
		case opHeartbeat:
			// Server requested an immediate heartbeat.
			beat := map[string]any{"op": opHeartbeat, "d": g.lastSeq()}
			if err := g.writeJSON(beat); err != nil {
				g.logger.Warn("gateway heartbeat failed", "error", err)
			}
		case opHeartbeatACK:
		default:
			g.logger.Debug("gateway unhandled opcode", "op", frame.Op)
		}
	}
}

func (g *Gateway) dispatch(frame payload) {
	switch frame.T {
	case "MESSAGE_CREATE":
		var msg Message
		if err := json.Unmarshal(frame.D, &msg); err != nil {
			g.logger.Warn("gateway malformed MESSAGE_CREATE", "error", err)
			return
		}
		select {
		case g.messages <- &msg:
		default:
			g.logger.Warn("gateway message channel full, dropping message",
				"channel_id", msg.ChannelID,
			)
		}
	case "READY":
		g.logger.Info("discord gateway ready")
	default:
		g.logger.Debug("gateway unhandled dispatch", "type", frame.T)
	}
}
