// Package call implements the negotiation state machine of a single endpoint.
//
// A Session serializes every input (user intents, relay messages, PeerLink
// callbacks, negotiation results, timers) through one event queue consumed by
// a single goroutine. Negotiation steps that may block run on worker
// goroutines and report back through the same queue, tagged with the
// generation of the call leg that started them.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const (
	DefaultCooldown  = 2 * time.Second
	DefaultQueueSize = 64
)

var (
	ErrNoLocalIdentity = errors.New("local identity required")
	ErrMissingDeps     = errors.New("signal channel, media source and peer link factory are required")
	ErrSelfCall        = errors.New("cannot call own identity")
	ErrNoTarget        = errors.New("call target required")
)

type Config struct {
	Local     domain.Identity
	Cooldown  time.Duration
	QueueSize int
}

// Deps are the collaborators a session drives. Output and Observer are optional.
type Deps struct {
	Signal   core.SignalChannel
	Media    core.MediaSource
	Links    core.PeerLinkFactory
	Output   core.AudioOutput
	Observer core.Observer
}

type Session struct {
	cfg  Config
	deps Deps

	events    chan event
	ctx       context.Context
	cancel    context.CancelFunc
	wg        conc.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once

	logger zerolog.Logger

	// owned by the run loop
	status      domain.CallStatus
	muted       bool
	speaker     bool
	leg         *leg
	linkSeq     uint64
	cooldownSeq uint64
	cooldown    *time.Timer

	snapMu sync.RWMutex
	snap   core.Snapshot
}

func New(cfg Config, deps Deps) (*Session, error) {
	if cfg.Local.IsZero() {
		return nil, ErrNoLocalIdentity
	}
	if deps.Signal == nil || deps.Media == nil || deps.Links == nil {
		return nil, ErrMissingDeps
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:     cfg,
		deps:    deps,
		events:  make(chan event, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		speaker: true,
		logger: log.With().
			Str("module", "app.call").
			Str("local", string(cfg.Local)).
			Logger(),
	}
	s.snap = core.Snapshot{Local: cfg.Local, Status: domain.StatusIdle, SpeakerEnabled: true}
	return s, nil
}

// Start launches the session loop. The session stops when ctx is done or Close is called.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		stop := context.AfterFunc(ctx, s.cancel)
		s.wg.Go(func() {
			defer stop()
			s.run()
		})
		s.wg.Go(s.pumpSignals)
	})
}

// Close releases every resource of the session and waits for its goroutines.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}

func (s *Session) StartCall(to domain.Identity) { s.enqueue(startIntent{to: to}) }
func (s *Session) EndCall()                     { s.enqueue(endIntent{}) }
func (s *Session) ToggleMute()                  { s.enqueue(muteIntent{}) }
func (s *Session) ToggleSpeaker()               { s.enqueue(speakerIntent{}) }

// Snapshot returns the last published state.
func (s *Session) Snapshot() core.Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

func (s *Session) enqueue(ev event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *Session) run() {
	defer s.teardown()

	if s.deps.Output != nil {
		s.deps.Output.SetSpeaker(s.speaker)
	}
	if err := s.provision(); err != nil {
		s.setupFailed(err)
	}
	s.publish()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

func (s *Session) pumpSignals() {
	in := s.deps.Signal.Inbound()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				s.enqueue(transportLost{})
				return
			}
			s.enqueue(inbound{msg: msg})
		}
	}
}

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case startIntent:
		s.onStart(ev.to)
	case endIntent:
		s.onEnd()
	case muteIntent:
		s.onMute()
	case speakerIntent:
		s.onSpeaker()
	case inbound:
		s.onInbound(ev.msg)
	case transportLost:
		s.onTransportLost()
	case localCandidate:
		s.onLocalCandidate(ev)
	case remoteTrack:
		s.onRemoteTrack(ev)
	case linkState:
		s.onLinkState(ev)
	case negotiated:
		s.onNegotiated(ev)
	case callback:
		ev()
	default:
		s.logger.Error().Str("event", fmt.Sprintf("%T", ev)).Msg("unknown event")
	}
}

func (s *Session) teardown() {
	if s.cooldown != nil {
		s.cooldown.Stop()
	}
	if l := s.leg; l != nil && !l.released {
		if l.contacted && !l.remote.IsZero() {
			s.send(domain.NewCallEnded(s.cfg.Local, l.remote, domain.ReasonHangup))
		}
		if err := l.release(); err != nil {
			s.logger.Warn().Err(err).Msg("close peer link")
		}
	}
	s.leg = nil
	s.logger.Info().Msg("session closed")
}

// provision prepares the leg of the next call: local stream first, then the link.
func (s *Session) provision() error {
	if s.leg != nil && !s.leg.released {
		return nil
	}
	stream, err := s.deps.Media.Open(s.ctx)
	if err != nil {
		return fmt.Errorf("open media source: %w", err)
	}
	l := newLeg(s.ctx, stream)
	for _, t := range stream.AudioTracks() {
		t.SetEnabled(!s.muted)
	}
	if err := s.attachLink(l); err != nil {
		stream.Stop()
		return err
	}
	s.leg = l
	s.logger.Debug().Str("stream", stream.ID()).Uint64("link", l.linkID).Msg("call leg ready")
	s.publish()
	return nil
}

// attachLink creates a fresh PeerLink for l and wires its callbacks.
func (s *Session) attachLink(l *leg) error {
	link, err := s.deps.Links.NewPeerLink()
	if err != nil {
		return fmt.Errorf("create peer link: %w", err)
	}
	for _, t := range l.stream.AudioTracks() {
		if err := link.AddTrack(t.Track()); err != nil {
			_ = link.Close()
			return fmt.Errorf("add local track: %w", err)
		}
	}
	s.linkSeq++
	id := s.linkSeq
	link.OnLocalCandidate(func(c webrtc.ICECandidateInit) {
		s.enqueue(localCandidate{link: id, cand: c})
	})
	link.OnRemoteTrack(func(rs core.RemoteStream) {
		s.enqueue(remoteTrack{link: id, stream: rs})
	})
	link.OnStateChange(func(st webrtc.PeerConnectionState) {
		s.enqueue(linkState{link: id, state: st})
	})
	l.link = link
	l.linkID = id
	return nil
}

// relink replaces the link of l. The old link is closed before the new one exists.
func (s *Session) relink(l *leg) error {
	l.gen++
	l.inflight = stepNone
	l.offerSent = false
	l.remoteDescSet = false
	l.pendingLocal = nil
	if err := l.link.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("close replaced peer link")
	}
	l.link = nil
	l.seen = make(map[string]struct{}, len(l.pendingRemote))
	for _, p := range l.pendingRemote {
		l.seen[seenKey(p.from, p.cand)] = struct{}{}
	}
	return s.attachLink(l)
}

func (s *Session) setStatus(to domain.CallStatus) {
	from := s.status
	if from == to {
		return
	}
	if !domain.CanTransition(from, to) {
		s.logger.Error().Str("from", from.String()).Str("to", to.String()).Msg("illegal transition refused")
		return
	}
	s.status = to
	s.logger.Info().Str("from", from.String()).Str("to", to.String()).Msg("status")
	s.publish()
}

func (s *Session) publish() {
	snap := core.Snapshot{
		Local:          s.cfg.Local,
		Status:         s.status,
		Muted:          s.muted,
		SpeakerEnabled: s.speaker,
	}
	if l := s.leg; l != nil {
		snap.Remote = l.remote
		snap.RemoteStream = l.remoteStream
		if !l.released {
			snap.LocalStream = l.stream
		}
	}
	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()
	if s.deps.Observer != nil {
		s.deps.Observer.OnState(snap)
	}
}

func (s *Session) notify(n core.Notice) {
	ev := s.logger.Info().Str("notice", string(n.Kind))
	if n.Err != nil {
		ev = ev.Err(n.Err)
	}
	ev.Str("remote", string(n.Remote)).Str("reason", n.Reason).Msg("notice")
	if s.deps.Observer != nil {
		s.deps.Observer.OnNotice(n)
	}
}

func (s *Session) setupFailed(err error) {
	s.logger.Warn().Err(err).Msg("call setup failed")
	s.notify(core.Notice{Kind: core.NoticeSetupFailed, Err: err})
}

func (s *Session) send(msg domain.Message) error {
	if err := s.deps.Signal.Send(msg); err != nil {
		s.logger.Warn().Err(err).Str("type", string(msg.Type)).Str("to", string(msg.To)).Msg("send failed")
		return err
	}
	s.logger.Debug().Str("type", string(msg.Type)).Str("to", string(msg.To)).Msg("sent")
	return nil
}

// terminate ends the current call. hangup tells the remote about it.
func (s *Session) terminate(n *core.Notice, hangup bool) {
	if s.status == domain.StatusEnded {
		return
	}
	if l := s.leg; l != nil && !l.released {
		if hangup && l.contacted && !l.remote.IsZero() {
			_ = s.send(domain.NewCallEnded(s.cfg.Local, l.remote, domain.ReasonHangup))
		}
		if err := l.release(); err != nil {
			s.logger.Warn().Err(err).Msg("close peer link")
		}
	}
	s.setStatus(domain.StatusEnded)
	if n != nil {
		s.notify(*n)
	}
	s.startCooldown()
}

func (s *Session) startCooldown() {
	s.cooldownSeq++
	seq := s.cooldownSeq
	if s.cooldown != nil {
		s.cooldown.Stop()
	}
	s.cooldown = time.AfterFunc(s.cfg.Cooldown, func() {
		s.enqueue(callback(func() { s.onCooldown(seq) }))
	})
}

func (s *Session) onCooldown(seq uint64) {
	if seq != s.cooldownSeq || s.status != domain.StatusEnded {
		return
	}
	s.leg = nil
	s.setStatus(domain.StatusIdle)
	if err := s.provision(); err != nil {
		s.setupFailed(err)
	}
}
