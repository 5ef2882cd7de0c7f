package media

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// Sink consumes remote audio packets for one output route.
type Sink interface {
	WritePacket(pkt *rtp.Packet) error
}

// CountingSink discards packets and keeps counters.
type CountingSink struct {
	packets atomic.Uint64
	bytes   atomic.Uint64
	silent  atomic.Uint64
}

func (s *CountingSink) WritePacket(pkt *rtp.Packet) error {
	s.packets.Add(1)
	s.bytes.Add(uint64(len(pkt.Payload)))
	if IsSilence(pkt.Payload) {
		s.silent.Add(1)
	}
	return nil
}

func (s *CountingSink) Packets() uint64 { return s.packets.Load() }
func (s *CountingSink) Bytes() uint64   { return s.bytes.Load() }
func (s *CountingSink) Silent() uint64  { return s.silent.Load() }

// Playout forwards every remote stream to the speaker or the earpiece sink.
type Playout struct {
	speaker  Sink
	earpiece Sink
	onSpeak  atomic.Bool

	wg     conc.WaitGroup
	logger zerolog.Logger
}

var _ core.AudioOutput = (*Playout)(nil)

// NewPlayout routes to the speaker until SetSpeaker(false). Nil sinks become CountingSinks.
func NewPlayout(speaker, earpiece Sink) *Playout {
	if speaker == nil {
		speaker = &CountingSink{}
	}
	if earpiece == nil {
		earpiece = &CountingSink{}
	}
	p := &Playout{
		speaker:  speaker,
		earpiece: earpiece,
		logger:   log.With().Str("module", "adapters.media.playout").Logger(),
	}
	p.onSpeak.Store(true)
	return p
}

func (p *Playout) SetSpeaker(enabled bool) {
	if p.onSpeak.Swap(enabled) != enabled {
		p.logger.Info().Bool("speaker", enabled).Msg("audio route changed")
	}
}

func (p *Playout) Speaker() bool { return p.onSpeak.Load() }

// Play reads stream until it ends or ctx is done.
func (p *Playout) Play(ctx context.Context, stream core.RemoteStream) {
	p.wg.Go(func() { p.loop(ctx, stream) })
}

// Wait blocks until every stream handed to Play has ended.
func (p *Playout) Wait() { p.wg.Wait() }

func (p *Playout) loop(ctx context.Context, stream core.RemoteStream) {
	logger := p.logger.With().Str("stream_id", stream.StreamID()).Str("track_id", stream.ID()).Logger()
	logger.Info().Msg("playout started")
	var n uint64
	for {
		select {
		case <-ctx.Done():
			logger.Info().Uint64("packets", n).Msg("playout ctx done")
			return
		default:
		}
		pkt, _, err := stream.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info().Uint64("packets", n).Msg("remote stream ended")
			} else {
				logger.Error().Err(err).Msg("read RTP error, stopping playout")
			}
			return
		}
		p.forward(pkt, &logger)
		n++
	}
}

func (p *Playout) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	sink := p.earpiece
	if p.onSpeak.Load() {
		sink = p.speaker
	}
	if err := sink.WritePacket(pkt); err != nil {
		logger.Warn().Err(err).Uint16("seq", pkt.SequenceNumber).Msg("sink write failed")
	}
}
