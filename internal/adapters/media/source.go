// Package media provides the local audio source and remote audio playout of an endpoint.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Input string

const (
	InputSilence    Input = "silence"
	InputMicrophone Input = "microphone"
)

var (
	ErrUnknownInput       = errors.New("unknown audio input")
	ErrCaptureUnsupported = errors.New("microphone capture is not supported by this build")
)

type Config struct {
	Input         Input
	FrameDuration time.Duration
}

// Source opens one Opus track per call.
type Source struct {
	cfg  Config
	open func(ctx context.Context, frame time.Duration) (SampleReader, error)
}

var _ core.MediaSource = (*Source)(nil)

func NewSource(cfg Config) (*Source, error) {
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = DefaultFrameDuration
	}
	s := &Source{cfg: cfg}
	switch cfg.Input {
	case InputSilence, "":
		s.cfg.Input = InputSilence
		s.open = func(_ context.Context, frame time.Duration) (SampleReader, error) {
			return newSilenceReader(frame), nil
		}
	case InputMicrophone:
		s.open = openMicrophone
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownInput, cfg.Input)
	}
	return s, nil
}

func (s *Source) Open(ctx context.Context) (core.LocalStream, error) {
	reader, err := s.open(ctx, s.cfg.FrameDuration)
	if err != nil {
		return nil, fmt.Errorf("open %s input: %w", s.cfg.Input, err)
	}
	streamID := uuid.NewString()
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio-"+streamID[:8], streamID,
	)
	if err != nil {
		_ = reader.Close()
		return nil, fmt.Errorf("create local track: %w", err)
	}
	track := newTrack(local, reader, nil)
	track.start(ctx)
	log.Info().Str("module", "adapters.media").Str("stream", streamID).Str("input", string(s.cfg.Input)).Msg("local stream opened")
	return newStream(streamID, track), nil
}

type Stream struct {
	id     string
	tracks []*Track
	once   sync.Once
}

func newStream(id string, tracks ...*Track) *Stream {
	return &Stream{id: id, tracks: tracks}
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) AudioTracks() []core.LocalAudioTrack {
	out := make([]core.LocalAudioTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *Stream) Stop() {
	s.once.Do(func() {
		for _, t := range s.tracks {
			t.Stop()
		}
		log.Info().Str("module", "adapters.media").Str("stream", s.id).Msg("local stream stopped")
	})
}
