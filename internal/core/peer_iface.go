package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// PeerLink is the negotiable connection primitive of one call.
// SetRemoteDescription must be called before any AddCandidate.
type PeerLink interface {
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetLocalDescription(ctx context.Context, desc webrtc.SessionDescription) error
	SetRemoteDescription(ctx context.Context, desc webrtc.SessionDescription) error
	AddCandidate(webrtc.ICECandidateInit) error
	AddTrack(webrtc.TrackLocal) error
	// Close stops all underlying transports. Safe to call more than once.
	Close() error

	// OnLocalCandidate sets a callback for newly gathered local ICE candidates.
	OnLocalCandidate(func(webrtc.ICECandidateInit))
	// OnRemoteTrack sets a callback invoked when the remote audio arrives.
	OnRemoteTrack(func(RemoteStream))
	OnStateChange(func(webrtc.PeerConnectionState))
}

type PeerLinkFactory interface {
	NewPeerLink() (PeerLink, error)
}
