//go:build linux && cgo

package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

var ErrNoMicrophone = errors.New("no microphone track")

// micReader pulls Opus frames encoded by mediadevices from the default microphone.
type micReader struct {
	track  mediadevices.Track
	reader mediadevices.EncodedReadCloser
	frame  time.Duration
}

func openMicrophone(_ context.Context, frame time.Duration) (SampleReader, error) {
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	selector := mediadevices.NewCodecSelector(mediadevices.WithAudioEncoders(&opusParams))

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
		Codec: selector,
	})
	if err != nil {
		return nil, fmt.Errorf("get user media: %w", err)
	}
	tracks := stream.GetAudioTracks()
	if len(tracks) == 0 {
		return nil, ErrNoMicrophone
	}
	for _, extra := range tracks[1:] {
		_ = extra.Close()
	}
	track := tracks[0]
	track.OnEnded(func(err error) {
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.media").Msg("microphone track ended")
		}
	})

	r, err := track.NewEncodedReader(webrtc.MimeTypeOpus)
	if err != nil {
		_ = track.Close()
		return nil, fmt.Errorf("opus reader: %w", err)
	}
	log.Info().Str("module", "adapters.media").Str("track", track.ID()).Msg("microphone opened")
	return &micReader{track: track, reader: r, frame: frame}, nil
}

func (m *micReader) ReadSample(ctx context.Context) (media.Sample, error) {
	if err := ctx.Err(); err != nil {
		return media.Sample{}, err
	}
	buf, release, err := m.reader.Read()
	if err != nil {
		return media.Sample{}, err
	}
	defer release()
	data := make([]byte, len(buf.Data))
	copy(data, buf.Data)
	d := m.frame
	if buf.Samples > 0 {
		d = time.Duration(buf.Samples) * time.Second / 48000
	}
	return media.Sample{Data: data, Duration: d}, nil
}

func (m *micReader) Close() error {
	return errors.Join(m.reader.Close(), m.track.Close())
}
