package call

import (
	"context"
	"fmt"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

type negotiationFunc func(ctx context.Context, link core.PeerLink) (webrtc.SessionDescription, error)

// negotiate runs fn on a worker goroutine. Only one step is in flight per leg.
func (s *Session) negotiate(l *leg, st step, fn negotiationFunc) {
	l.inflight = st
	ctx, link, linkID, gen := l.ctx, l.link, l.linkID, l.gen
	s.logger.Debug().Str("step", st.String()).Uint64("gen", gen).Msg("negotiation started")
	s.wg.Go(func() {
		desc, err := fn(ctx, link)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		s.enqueue(negotiated{link: linkID, gen: gen, step: st, desc: desc, err: err})
	})
}

func createOffer(ctx context.Context, link core.PeerLink) (webrtc.SessionDescription, error) {
	offer, err := link.CreateOffer(ctx)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := link.SetLocalDescription(ctx, offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return offer, nil
}

func answerOffer(offer webrtc.SessionDescription) negotiationFunc {
	return func(ctx context.Context, link core.PeerLink) (webrtc.SessionDescription, error) {
		if err := link.SetRemoteDescription(ctx, offer); err != nil {
			return webrtc.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
		}
		answer, err := link.CreateAnswer(ctx)
		if err != nil {
			return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
		}
		if err := link.SetLocalDescription(ctx, answer); err != nil {
			return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
		}
		return answer, nil
	}
}

func applyAnswer(answer webrtc.SessionDescription) negotiationFunc {
	return func(ctx context.Context, link core.PeerLink) (webrtc.SessionDescription, error) {
		if err := link.SetRemoteDescription(ctx, answer); err != nil {
			return webrtc.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
		}
		return answer, nil
	}
}

func (s *Session) onNegotiated(ev negotiated) {
	l := s.leg
	if l == nil || !l.owns(ev.link) || ev.gen != l.gen {
		s.logger.Debug().Str("step", ev.step.String()).Uint64("gen", ev.gen).Msg("stale negotiation result discarded")
		return
	}
	l.inflight = stepNone
	if ev.err != nil {
		s.failNegotiation(l, ev.step, ev.err)
		return
	}

	switch ev.step {
	case stepOffer:
		if s.status != domain.StatusCalling {
			return
		}
		if err := s.send(domain.NewOffer(s.cfg.Local, l.remote, ev.desc)); err != nil {
			s.failNegotiation(l, ev.step, fmt.Errorf("send offer: %w", err))
			return
		}
		l.offerSent = true
		l.contacted = true

	case stepAnswer:
		l.remoteDescSet = true
		if err := s.send(domain.NewAnswer(s.cfg.Local, l.remote, ev.desc)); err != nil {
			s.failNegotiation(l, ev.step, fmt.Errorf("send answer: %w", err))
			return
		}
		s.setStatus(domain.StatusInCall)
		s.drainCandidates(l)

	case stepApplyAnswer:
		l.remoteDescSet = true
		s.setStatus(domain.StatusInCall)
		s.drainCandidates(l)
	}
}

// failNegotiation never leaves a half-negotiated leg behind: the leg is discarded.
func (s *Session) failNegotiation(l *leg, st step, err error) {
	s.logger.Warn().Err(err).Str("step", st.String()).Msg("negotiation failed")
	n := core.Notice{Kind: core.NoticeNegotiationFailed, Remote: l.remote, Err: err}

	if s.status == domain.StatusInCall {
		s.terminate(&n, true)
		return
	}
	if l.contacted && !l.remote.IsZero() {
		_ = s.send(domain.NewCallEnded(s.cfg.Local, l.remote, domain.ReasonFailed))
	}
	if err := l.release(); err != nil {
		s.logger.Warn().Err(err).Msg("close peer link")
	}
	s.leg = nil
	if s.status == domain.StatusCalling {
		s.setStatus(domain.StatusIdle)
	}
	s.notify(n)
	if err := s.provision(); err != nil {
		s.setupFailed(err)
	}
	s.publish()
}

// bindRemote records the counterpart once and flushes buffered local candidates to it.
func (s *Session) bindRemote(l *leg, remote domain.Identity) {
	if !l.remote.IsZero() {
		return
	}
	l.remote = remote
	for _, c := range l.pendingLocal {
		_ = s.send(domain.NewCandidate(s.cfg.Local, remote, c))
	}
	l.pendingLocal = nil
	s.publish()
}

// drainCandidates applies queued remote candidates from the bound remote in receipt order.
func (s *Session) drainCandidates(l *leg) {
	pending := l.pendingRemote
	l.pendingRemote = nil
	for _, p := range pending {
		if p.from != l.remote {
			s.logger.Debug().Str("from", string(p.from)).Msg("queued candidate from other sender discarded")
			continue
		}
		s.applyCandidate(l, p.cand)
	}
}

func (s *Session) applyCandidate(l *leg, c webrtc.ICECandidateInit) {
	if err := l.link.AddCandidate(c); err != nil {
		s.logger.Warn().Err(err).Str("candidate", c.Candidate).Msg("add candidate")
	}
}
