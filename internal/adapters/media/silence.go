package media

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
)

// DefaultFrameDuration is the Opus frame size written to local tracks.
const DefaultFrameDuration = 20 * time.Millisecond

// opusSilence is a single 20 ms CELT silence frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

func silenceSample(d time.Duration) media.Sample {
	if d <= 0 {
		d = DefaultFrameDuration
	}
	data := make([]byte, len(opusSilence))
	copy(data, opusSilence)
	return media.Sample{Data: data, Duration: d}
}

// IsSilence reports whether payload is the frame muted tracks emit.
func IsSilence(payload []byte) bool {
	if len(payload) != len(opusSilence) {
		return false
	}
	for i := range payload {
		if payload[i] != opusSilence[i] {
			return false
		}
	}
	return true
}

// silenceReader paces silence frames in real time.
type silenceReader struct {
	frame  time.Duration
	ticker *time.Ticker
	closed chan struct{}
	once   sync.Once
}

func newSilenceReader(frame time.Duration) *silenceReader {
	if frame <= 0 {
		frame = DefaultFrameDuration
	}
	return &silenceReader{
		frame:  frame,
		ticker: time.NewTicker(frame),
		closed: make(chan struct{}),
	}
}

func (r *silenceReader) ReadSample(ctx context.Context) (media.Sample, error) {
	select {
	case <-ctx.Done():
		return media.Sample{}, ctx.Err()
	case <-r.closed:
		return media.Sample{}, io.EOF
	case <-r.ticker.C:
		return silenceSample(r.frame), nil
	}
}

func (r *silenceReader) Close() error {
	r.once.Do(func() {
		r.ticker.Stop()
		close(r.closed)
	})
	return nil
}
