package core

import (
	"context"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// MediaSource opens the local capture stream for one call.
type MediaSource interface {
	Open(ctx context.Context) (LocalStream, error)
}

// LocalStream is exclusively owned by the call that opened it.
type LocalStream interface {
	ID() string
	AudioTracks() []LocalAudioTrack
	// Stop stops every track. Safe to call more than once.
	Stop()
}

type LocalAudioTrack interface {
	// Track is what gets attached to the PeerLink.
	Track() webrtc.TrackLocal
	SetEnabled(bool)
	Enabled() bool
	Stop()
}

// RemoteStream is the inbound media handed out by the PeerLink.
// Its lifetime is owned by the PeerLink; *webrtc.TrackRemote satisfies it.
type RemoteStream interface {
	ID() string
	StreamID() string
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// AudioOutput plays the remote stream.
type AudioOutput interface {
	Play(ctx context.Context, stream RemoteStream)
	SetSpeaker(enabled bool)
}
