// Package wsclient is the endpoint side of the signaling channel: a WebSocket
// connection to the relay carrying JSON envelopes.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var ErrClosed = errors.New("signal channel closed")

type Config struct {
	URL              string
	Identity         domain.Identity
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingPeriod       time.Duration
	PongWait         time.Duration
	ReadLimit        int64
	SendBuffer       int
	InboundBuffer    int
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = 30 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = c.PingPeriod * 10 / 9
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 << 10
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.InboundBuffer <= 0 {
		c.InboundBuffer = 64
	}
}

// Client implements core.SignalChannel over a gorilla WebSocket.
type Client struct {
	cfg  Config
	conn *websocket.Conn
	send chan core.Frame
	in   chan domain.Message

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup
	logger zerolog.Logger
}

var _ core.SignalChannel = (*Client)(nil)

// Dial connects to the relay as cfg.Identity.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg.applyDefaults()
	if cfg.Identity.IsZero() {
		return nil, domain.ErrIdentityEmpty
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("id", string(cfg.Identity))
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", cfg.URL, err)
	}
	c := newClient(conn, cfg)
	c.logger.Info().Str("url", cfg.URL).Msg("connected to relay")
	return c, nil
}

func newClient(conn *websocket.Conn, cfg Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:    cfg,
		conn:   conn,
		send:   make(chan core.Frame, cfg.SendBuffer),
		in:     make(chan domain.Message, cfg.InboundBuffer),
		ctx:    ctx,
		cancel: cancel,
		logger: log.With().
			Str("module", "adapters.wsclient").
			Str("identity", string(cfg.Identity)).
			Logger(),
	}
	conn.SetReadLimit(cfg.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})
	c.wg.Go(c.writePump)
	c.wg.Go(c.readPump)
	return c
}

func (c *Client) Inbound() <-chan domain.Message { return c.in }

// Send stamps the local identity on msg and queues it.
func (c *Client) Send(msg domain.Message) error {
	msg.From = c.cfg.Identity
	if err := msg.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}
	return c.TrySend(data)
}

func (c *Client) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

// Close flushes queued frames, shuts the connection and waits for the pumps.
// Inbound gets closed.
func (c *Client) Close() {
	c.shutdown()
	c.wg.Wait()
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.ctx.Done():
			if err := c.flush(); err != nil {
				c.logger.Debug().Err(err).Msg("flush on close")
				return
			}
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case data := <-c.send:
			if err := c.write(data); err != nil {
				c.logger.Error().Err(err).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Warn().Err(err).Msg("writePump ping failed")
				return
			}
		}
	}
}

// flush writes the frames queued before shutdown. No frame can be queued after it.
func (c *Client) flush() error {
	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (c *Client) write(data core.Frame) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		close(c.in)
		c.logger.Info().Msg("readPump closing")
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("relay connection lost")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		msg, ok := c.decode(data)
		if !ok {
			continue
		}
		select {
		case c.in <- msg:
		case <-c.ctx.Done():
			return
		}
	}
}

// decode handles relay control messages itself and returns routed ones.
func (c *Client) decode(data []byte) (domain.Message, bool) {
	var env domain.Control
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn().Err(err).Msg("bad json")
		return domain.Message{}, false
	}
	switch env.Type {
	case domain.TypePing:
		if err := c.sendControl(domain.Control{Type: domain.TypePong}); err != nil {
			c.logger.Warn().Err(err).Msg("pong")
		}
		return domain.Message{}, false
	case domain.TypePong:
		c.logger.Debug().Msg("pong")
		return domain.Message{}, false
	case domain.TypeError:
		c.logger.Warn().Str("error", env.Error).Msg("relay error")
		return domain.Message{}, false
	case domain.TypeWhoAmI:
		if env.Identity != c.cfg.Identity {
			c.logger.Warn().Str("relay_identity", string(env.Identity)).Msg("relay assigned a different identity")
		}
		return domain.Message{}, false
	}

	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn().Err(err).Msg("bad message")
		return domain.Message{}, false
	}
	if err := msg.Validate(); err != nil {
		c.logger.Warn().Err(err).Msg("invalid message dropped")
		return domain.Message{}, false
	}
	return msg, true
}

// Ping asks the relay for an application-level pong.
func (c *Client) Ping() error {
	return c.sendControl(domain.Control{Type: domain.TypePing})
}

func (c *Client) sendControl(ctl domain.Control) error {
	data, err := json.Marshal(ctl)
	if err != nil {
		return err
	}
	return c.TrySend(data)
}
