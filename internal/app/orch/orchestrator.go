// Package orch owns the identity lifecycle of an endpoint: login connects to
// the relay and starts a call session, logout tears both down.
package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/VoiceCall/internal/adapters/media"
	"github.com/dkeye/VoiceCall/internal/adapters/rtc"
	"github.com/dkeye/VoiceCall/internal/adapters/wsclient"
	"github.com/dkeye/VoiceCall/internal/app/call"
	"github.com/dkeye/VoiceCall/internal/config"
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrLoggedIn    = errors.New("already logged in")
	ErrNotLoggedIn = errors.New("not logged in")
)

// DialFunc opens the signal channel for id.
type DialFunc func(ctx context.Context, id domain.Identity) (core.SignalChannel, error)

type Orchestrator struct {
	Dial     DialFunc
	Media    core.MediaSource
	Links    core.PeerLinkFactory
	Output   core.AudioOutput
	Observer core.Observer
	Cooldown time.Duration

	mu       sync.Mutex
	identity domain.Identity
	signal   core.SignalChannel
	session  *call.Session
}

// New wires the production adapters described by cfg.
func New(cfg *config.Config, observer core.Observer) (*Orchestrator, error) {
	source, err := media.NewSource(media.Config{Input: media.Input(cfg.Client.Input)})
	if err != nil {
		return nil, fmt.Errorf("media source: %w", err)
	}

	rtcCfg := rtc.DefaultConfig()
	if len(cfg.Client.ICEServers) > 0 {
		rtcCfg.ICEServers = cfg.Client.ICEServers
	}
	if cfg.Client.ICEDisconnectedTimeout > 0 {
		rtcCfg.DisconnectedTimeout = cfg.Client.ICEDisconnectedTimeout
	}
	if cfg.Client.ICEFailedTimeout > 0 {
		rtcCfg.FailedTimeout = cfg.Client.ICEFailedTimeout
	}
	if cfg.Client.ICEKeepAlive > 0 {
		rtcCfg.KeepAliveInterval = cfg.Client.ICEKeepAlive
	}
	links, err := rtc.NewFactory(rtcCfg)
	if err != nil {
		return nil, fmt.Errorf("peer link factory: %w", err)
	}

	relayURL := cfg.Client.RelayURL
	return &Orchestrator{
		Dial: func(ctx context.Context, id domain.Identity) (core.SignalChannel, error) {
			return wsclient.Dial(ctx, wsclient.Config{URL: relayURL, Identity: id})
		},
		Media:    source,
		Links:    links,
		Output:   media.NewPlayout(nil, nil),
		Observer: observer,
		Cooldown: cfg.Client.Cooldown,
	}, nil
}

// Login connects id to the relay and starts its call session.
func (o *Orchestrator) Login(ctx context.Context, id domain.Identity) (*call.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != nil {
		return nil, ErrLoggedIn
	}
	if id.IsZero() {
		id = domain.NewIdentity()
	}

	sig, err := o.Dial(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("connect relay: %w", err)
	}
	session, err := call.New(call.Config{Local: id, Cooldown: o.Cooldown}, call.Deps{
		Signal:   sig,
		Media:    o.Media,
		Links:    o.Links,
		Output:   o.Output,
		Observer: o.Observer,
	})
	if err != nil {
		sig.Close()
		return nil, err
	}
	session.Start(ctx)

	o.identity, o.signal, o.session = id, sig, session
	log.Info().Str("module", "app.orch").Str("identity", string(id)).Msg("logged in")
	return session, nil
}

// Logout ends any active call, stops the session and closes the relay connection.
func (o *Orchestrator) Logout() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return ErrNotLoggedIn
	}
	o.session.Close()
	o.signal.Close()
	log.Info().Str("module", "app.orch").Str("identity", string(o.identity)).Msg("logged out")
	o.identity, o.signal, o.session = "", nil, nil
	return nil
}

func (o *Orchestrator) Identity() domain.Identity {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.identity
}

func (o *Orchestrator) Session() *call.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}
