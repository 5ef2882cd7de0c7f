package call

import (
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

func (s *Session) onStart(to domain.Identity) {
	if s.status != domain.StatusIdle {
		s.logger.Debug().Str("status", s.status.String()).Msg("start ignored, not idle")
		return
	}
	if to.IsZero() || to == s.cfg.Local {
		err := ErrNoTarget
		if to == s.cfg.Local {
			err = ErrSelfCall
		}
		s.logger.Warn().Err(err).Str("to", string(to)).Msg("start rejected")
		s.notify(core.Notice{Kind: core.NoticeRejected, Remote: to, Err: err})
		return
	}
	if err := s.provision(); err != nil {
		s.setupFailed(err)
		return
	}
	l := s.leg
	if l.active() {
		s.logger.Debug().Str("remote", string(l.remote)).Msg("start ignored, negotiation in progress")
		return
	}
	s.bindRemote(l, to)
	s.setStatus(domain.StatusCalling)
	s.negotiate(l, stepOffer, createOffer)
}

// onEnd is idempotent. Idle without a pending negotiation is a no-op.
func (s *Session) onEnd() {
	switch s.status {
	case domain.StatusEnded:
		return
	case domain.StatusIdle:
		if l := s.leg; l == nil || !l.active() {
			return
		}
	}
	s.terminate(nil, true)
}

func (s *Session) onMute() {
	s.muted = !s.muted
	if l := s.leg; l != nil && !l.released {
		for _, t := range l.stream.AudioTracks() {
			t.SetEnabled(!s.muted)
		}
	}
	s.logger.Info().Bool("muted", s.muted).Msg("mute toggled")
	s.publish()
}

func (s *Session) onSpeaker() {
	s.speaker = !s.speaker
	if s.deps.Output != nil {
		s.deps.Output.SetSpeaker(s.speaker)
	}
	s.logger.Info().Bool("speaker", s.speaker).Msg("speaker toggled")
	s.publish()
}
