package call

import (
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

func (s *Session) onInbound(msg domain.Message) {
	if err := msg.Validate(); err != nil {
		s.logger.Warn().Err(err).Msg("invalid signal dropped")
		return
	}
	if msg.To != s.cfg.Local || msg.From.IsZero() {
		s.logger.Warn().Str("from", string(msg.From)).Str("to", string(msg.To)).Msg("misrouted signal dropped")
		return
	}
	switch msg.Type {
	case domain.TypeOffer:
		s.onOffer(msg.From, *msg.SDP)
	case domain.TypeAnswer:
		s.onAnswer(msg.From, *msg.SDP)
	case domain.TypeCandidate:
		s.onCandidate(msg.From, *msg.Candidate)
	case domain.TypeCallEnded:
		s.onRemoteEnded(msg.From, msg.Reason)
	}
}

func (s *Session) stale(kind string, from domain.Identity) {
	s.logger.Debug().
		Str("type", kind).
		Str("from", string(from)).
		Str("status", s.status.String()).
		Msg("stale signal dropped")
}

func (s *Session) onOffer(from domain.Identity, offer webrtc.SessionDescription) {
	if s.status == domain.StatusEnded {
		s.stale("offer", from)
		return
	}
	if err := s.provision(); err != nil {
		s.setupFailed(err)
		_ = s.send(domain.NewCallEnded(s.cfg.Local, from, domain.ReasonUnavailable))
		return
	}
	l := s.leg
	if !l.remote.IsZero() && l.remote != from {
		s.logger.Info().Str("from", string(from)).Str("remote", string(l.remote)).Msg("busy, offer rejected")
		_ = s.send(domain.NewCallEnded(s.cfg.Local, from, domain.ReasonBusy))
		return
	}
	if l.inflight == stepAnswer {
		s.stale("offer", from)
		return
	}

	if s.status == domain.StatusCalling {
		if !s.cfg.Local.Defers(from) {
			s.logger.Info().Str("from", string(from)).Msg("glare, keeping own offer")
			return
		}
		s.logger.Info().Str("from", string(from)).Msg("glare, deferring to remote offer")
		if err := s.relink(l); err != nil {
			s.failNegotiation(l, stepAnswer, err)
			return
		}
	}

	s.bindRemote(l, from)
	l.contacted = true
	s.negotiate(l, stepAnswer, answerOffer(offer))
}

func (s *Session) onAnswer(from domain.Identity, answer webrtc.SessionDescription) {
	l := s.leg
	if s.status != domain.StatusCalling || l == nil || l.released ||
		from != l.remote || !l.offerSent || l.inflight != stepNone {
		s.stale("answer", from)
		return
	}
	s.negotiate(l, stepApplyAnswer, applyAnswer(answer))
}

func (s *Session) onCandidate(from domain.Identity, c webrtc.ICECandidateInit) {
	l := s.leg
	if s.status == domain.StatusEnded || l == nil || l.released {
		s.stale("candidate", from)
		return
	}
	if !l.remote.IsZero() && from != l.remote {
		s.stale("candidate", from)
		return
	}
	key := seenKey(from, c)
	if _, dup := l.seen[key]; dup {
		s.logger.Debug().Str("candidate", c.Candidate).Msg("duplicate candidate ignored")
		return
	}
	l.seen[key] = struct{}{}
	if !l.remoteDescSet {
		l.pendingRemote = append(l.pendingRemote, remoteCandidate{from: from, cand: c})
		return
	}
	s.applyCandidate(l, c)
}

func (s *Session) onRemoteEnded(from domain.Identity, reason string) {
	l := s.leg
	if l == nil || l.released || l.remote.IsZero() || from != l.remote {
		s.stale("call-ended", from)
		return
	}
	s.terminate(&core.Notice{Kind: core.NoticeRemoteEnded, Remote: from, Reason: reason}, false)
}

func (s *Session) onTransportLost() {
	n := core.Notice{Kind: core.NoticeTransportLost}
	if l := s.leg; l != nil && l.active() {
		n.Remote = l.remote
		s.terminate(&n, false)
		return
	}
	s.notify(n)
}

func (s *Session) onLocalCandidate(ev localCandidate) {
	l := s.leg
	if l == nil || !l.owns(ev.link) {
		return
	}
	if l.remote.IsZero() {
		l.pendingLocal = append(l.pendingLocal, ev.cand)
		return
	}
	_ = s.send(domain.NewCandidate(s.cfg.Local, l.remote, ev.cand))
}

func (s *Session) onRemoteTrack(ev remoteTrack) {
	l := s.leg
	if l == nil || !l.owns(ev.link) {
		return
	}
	l.remoteStream = ev.stream
	s.logger.Info().Str("stream", ev.stream.StreamID()).Str("track", ev.stream.ID()).Msg("remote track arrived")
	if s.deps.Output != nil {
		s.deps.Output.Play(l.ctx, ev.stream)
	}
	s.publish()
}

func (s *Session) onLinkState(ev linkState) {
	l := s.leg
	if l == nil || !l.owns(ev.link) {
		return
	}
	s.logger.Info().Str("peer_connection_state", ev.state.String()).Msg("peer state")
	if ev.state == webrtc.PeerConnectionStateFailed && l.active() {
		s.terminate(&core.Notice{Kind: core.NoticePeerFailed, Remote: l.remote}, true)
	}
}
