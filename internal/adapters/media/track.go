package media

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateStopped
)

// SampleReader yields encoded Opus frames for a local track.
type SampleReader interface {
	ReadSample(ctx context.Context) (media.Sample, error)
	Close() error
}

type sampleWriter interface {
	WriteSample(media.Sample) error
}

// Track is a local audio track fed by a SampleReader. A muted track keeps
// emitting frames but replaces their payload with Opus silence.
type Track struct {
	local  *webrtc.TrackLocalStaticSample
	reader SampleReader
	writer sampleWriter
	state  atomic.Int32 // Zero by default (TrackStateOk)

	written atomic.Uint64
	silent  atomic.Uint64

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func newTrack(local *webrtc.TrackLocalStaticSample, reader SampleReader, writer sampleWriter) *Track {
	if writer == nil {
		writer = local
	}
	t := &Track{
		local:  local,
		reader: reader,
		writer: writer,
		done:   make(chan struct{}),
	}
	id := "detached"
	if local != nil {
		id = local.ID()
	}
	t.logger = log.With().Str("module", "adapters.media").Str("track", id).Logger()
	return t
}

func (t *Track) start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	go t.pump(ctx)
}

func (t *Track) pump(ctx context.Context) {
	defer close(t.done)
	for {
		sample, err := t.reader.ReadSample(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				t.logger.Warn().Err(err).Msg("sample read failed, stopping track")
			}
			return
		}
		switch t.State() {
		case TrackStateStopped:
			return
		case TrackStateMuted:
			sample = silenceSample(sample.Duration)
			t.silent.Add(1)
		}
		if err := t.writer.WriteSample(sample); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				return
			}
			t.logger.Debug().Err(err).Msg("write sample")
			continue
		}
		t.written.Add(1)
	}
}

func (t *Track) Track() webrtc.TrackLocal { return t.local }

func (t *Track) State() TrackState { return TrackState(t.state.Load()) }

func (t *Track) SetEnabled(on bool) {
	next := TrackStateMuted
	if on {
		next = TrackStateOk
	}
	for {
		cur := t.state.Load()
		if TrackState(cur) == TrackStateStopped {
			return
		}
		if t.state.CompareAndSwap(cur, int32(next)) {
			return
		}
	}
}

func (t *Track) Enabled() bool { return t.State() == TrackStateOk }

// Written reports frames handed to the track and how many of them were silence.
func (t *Track) Written() (total, silent uint64) {
	return t.written.Load(), t.silent.Load()
}

// Stop is idempotent and waits for the pump to exit.
func (t *Track) Stop() {
	t.once.Do(func() {
		t.state.Store(int32(TrackStateStopped))
		if t.cancel != nil {
			t.cancel()
		}
		if err := t.reader.Close(); err != nil {
			t.logger.Warn().Err(err).Msg("close sample reader")
		}
		if t.cancel != nil {
			select {
			case <-t.done:
			case <-time.After(time.Second):
				t.logger.Warn().Msg("track pump did not exit")
			}
		}
		t.logger.Debug().Msg("track stopped")
	})
}
