// Package relay routes signaling envelopes between connected identities.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotRegistered = errors.New("sender not registered")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrSelfAddressed = errors.New("message addressed to sender")
)

type Config struct {
	RateLimit  int
	RateWindow time.Duration
	Policy     Policy
}

type peer struct {
	conn    core.SignalConnection
	cancel  context.CancelFunc
	partner domain.Identity
	since   time.Time
}

type delivery struct {
	to    domain.Identity
	conn  core.SignalConnection
	frame core.Frame
}

// Hub is the registry of online identities. One connection per identity.
type Hub struct {
	mu    sync.RWMutex
	peers map[domain.Identity]*peer

	limiter *RateLimiter
	policy  Policy
	logger  zerolog.Logger
}

func NewHub(cfg Config) *Hub {
	if cfg.Policy == nil {
		cfg.Policy = KickPolicy{}
	}
	return &Hub{
		peers:   make(map[domain.Identity]*peer),
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		policy:  cfg.Policy,
		logger:  log.With().Str("module", "app.relay").Logger(),
	}
}

// Register binds conn to id. An existing connection for id is closed and replaced.
func (h *Hub) Register(id domain.Identity, conn core.SignalConnection, cancel context.CancelFunc) {
	h.mu.Lock()
	old := h.peers[id]
	var notify []delivery
	if old != nil {
		notify = h.unpairLocked(id, old)
	}
	h.peers[id] = &peer{conn: conn, cancel: cancel, since: time.Now()}
	h.mu.Unlock()

	if old != nil {
		h.logger.Info().Str("identity", string(id)).Msg("replaced connection")
		closePeer(old)
	} else {
		h.logger.Info().Str("identity", string(id)).Msg("registered")
	}
	h.deliver(notify)
}

// Unregister removes id if conn is still its current connection.
// The call partner, if any, is told the call ended.
func (h *Hub) Unregister(id domain.Identity, conn core.SignalConnection) {
	h.mu.Lock()
	p, ok := h.peers[id]
	if !ok || p.conn != conn {
		h.mu.Unlock()
		return
	}
	delete(h.peers, id)
	notify := h.unpairLocked(id, p)
	h.mu.Unlock()

	h.limiter.Forget(id)
	h.logger.Info().Str("identity", string(id)).Msg("unregistered")
	h.deliver(notify)
}

// Kick closes the connection of id and unregisters it.
func (h *Hub) Kick(id domain.Identity) bool {
	h.mu.RLock()
	p, ok := h.peers[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	h.Unregister(id, p.conn)
	closePeer(p)
	h.logger.Warn().Str("identity", string(id)).Msg("kicked")
	return true
}

func (h *Hub) Online() []domain.Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.Identity, 0, len(h.peers))
	for id := range h.peers {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Partner returns the identity id is in a call with.
func (h *Hub) Partner(id domain.Identity) (domain.Identity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.peers[id]
	if !ok || p.partner.IsZero() {
		return "", false
	}
	return p.partner, true
}

// Route delivers msg from the authenticated sender to msg.To.
// Errors are reported to the sender by the caller.
func (h *Hub) Route(from domain.Identity, msg domain.Message) error {
	if !h.limiter.Allow(from) {
		return ErrRateLimited
	}
	msg.From = from
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.To == from {
		return ErrSelfAddressed
	}

	h.mu.Lock()
	sender, ok := h.peers[from]
	if !ok {
		h.mu.Unlock()
		return ErrNotRegistered
	}
	recipient, online := h.peers[msg.To]
	if !online {
		h.mu.Unlock()
		h.logger.Debug().Str("from", string(from)).Str("to", string(msg.To)).Msg("recipient offline")
		if msg.Type != domain.TypeCallEnded {
			h.deliver([]delivery{h.frame(from, sender.conn, domain.NewCallEnded(msg.To, from, domain.ReasonUnavailable))})
		}
		return nil
	}
	switch msg.Type {
	case domain.TypeOffer, domain.TypeAnswer:
		if (sender.partner.IsZero() || sender.partner == msg.To) &&
			(recipient.partner.IsZero() || recipient.partner == from) {
			sender.partner, recipient.partner = msg.To, from
		}
	case domain.TypeCallEnded:
		if sender.partner == msg.To {
			sender.partner = ""
			if recipient.partner == from {
				recipient.partner = ""
			}
		}
	}
	d := h.frame(msg.To, recipient.conn, msg)
	h.mu.Unlock()

	h.logger.Debug().Str("type", string(msg.Type)).Str("from", string(from)).Str("to", string(msg.To)).Msg("routed")
	h.deliver([]delivery{d})
	return nil
}

// Reply sends a relay control message to id.
func (h *Hub) Reply(id domain.Identity, ctl domain.Control) {
	h.mu.RLock()
	p, ok := h.peers[id]
	h.mu.RUnlock()
	if !ok {
		return
	}
	data, err := json.Marshal(ctl)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal control")
		return
	}
	h.deliver([]delivery{{to: id, conn: p.conn, frame: data}})
}

func (h *Hub) unpairLocked(id domain.Identity, p *peer) []delivery {
	if p.partner.IsZero() {
		return nil
	}
	mate, ok := h.peers[p.partner]
	partner := p.partner
	p.partner = ""
	if !ok || mate.partner != id {
		return nil
	}
	mate.partner = ""
	return []delivery{h.frame(partner, mate.conn, domain.NewCallEnded(id, partner, domain.ReasonDisconnected))}
}

func (h *Hub) frame(to domain.Identity, conn core.SignalConnection, msg domain.Message) delivery {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal message")
	}
	return delivery{to: to, conn: conn, frame: data}
}

func (h *Hub) deliver(ds []delivery) {
	for _, d := range ds {
		if d.frame == nil {
			continue
		}
		err := d.conn.TrySend(d.frame)
		if err == nil {
			continue
		}
		if !errors.Is(err, core.ErrBackpressure) {
			h.logger.Debug().Err(err).Str("to", string(d.to)).Msg("deliver")
			continue
		}
		switch h.policy.OnBackPressure(d.to) {
		case KickPeer:
			h.Kick(d.to)
		case DropFrame:
			h.logger.Warn().Str("to", string(d.to)).Msg("frame dropped, slow peer")
		case NoAction:
		}
	}
}

func closePeer(p *peer) {
	if p.cancel != nil {
		p.cancel()
	}
	p.conn.Close()
}
