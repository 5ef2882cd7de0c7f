package rtc

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrLinkClosed = errors.New("peer link closed")

// Link is a core.PeerLink over a pion PeerConnection.
// Candidates are trickled: descriptions are returned without waiting for gathering.
type Link struct {
	pc     *webrtc.PeerConnection
	id     string
	logger zerolog.Logger

	mu       sync.RWMutex
	onICE    func(webrtc.ICECandidateInit)
	onTrack  func(core.RemoteStream)
	onState  func(webrtc.PeerConnectionState)
	closed   bool
	closeErr error
}

func newLink(pc *webrtc.PeerConnection, id string) *Link {
	l := &Link{
		pc: pc,
		id: id,
		logger: log.With().
			Str("module", "adapters.rtc").
			Str("link", id).
			Logger(),
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		l.logger.Debug().Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		l.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		l.mu.RLock()
		fn := l.onState
		l.mu.RUnlock()
		if fn != nil {
			fn(s)
		}
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			l.logger.Debug().Msg("ICE gathering complete")
			return
		}
		l.mu.RLock()
		fn := l.onICE
		l.mu.RUnlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		l.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		l.mu.RLock()
		fn := l.onTrack
		l.mu.RUnlock()
		if fn != nil {
			fn(track)
		}
	})

	return l
}

func (l *Link) ID() string { return l.id }

func (l *Link) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := l.usable(ctx); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return l.pc.CreateOffer(nil)
}

func (l *Link) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := l.usable(ctx); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return l.pc.CreateAnswer(nil)
}

func (l *Link) SetLocalDescription(ctx context.Context, desc webrtc.SessionDescription) error {
	if err := l.usable(ctx); err != nil {
		return err
	}
	return l.pc.SetLocalDescription(desc)
}

func (l *Link) SetRemoteDescription(ctx context.Context, desc webrtc.SessionDescription) error {
	if err := l.usable(ctx); err != nil {
		return err
	}
	return l.pc.SetRemoteDescription(desc)
}

func (l *Link) AddCandidate(c webrtc.ICECandidateInit) error {
	if err := l.usable(context.Background()); err != nil {
		return err
	}
	return l.pc.AddICECandidate(c)
}

// AddTrack attaches a local track and drains RTCP for its sender so interceptors keep working.
func (l *Link) AddTrack(track webrtc.TrackLocal) error {
	if err := l.usable(context.Background()); err != nil {
		return err
	}
	sender, err := l.pc.AddTrack(track)
	if err != nil {
		return err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// LocalDescription returns the applied local description, nil before one is set.
func (l *Link) LocalDescription() *webrtc.SessionDescription {
	return l.pc.LocalDescription()
}

func (l *Link) ConnectionState() webrtc.PeerConnectionState {
	return l.pc.ConnectionState()
}

func (l *Link) OnLocalCandidate(fn func(webrtc.ICECandidateInit)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onICE = fn
}

// OnRemoteTrack sets application-level callback for remote tracks.
func (l *Link) OnRemoteTrack(fn func(core.RemoteStream)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onTrack = fn
}

func (l *Link) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onState = fn
}

// Close is idempotent. Callbacks are detached before the connection is closed.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return l.closeErr
	}
	l.closed = true
	l.onICE, l.onTrack, l.onState = nil, nil, nil
	l.mu.Unlock()

	err := l.pc.Close()
	if err != nil {
		l.logger.Error().Err(err).Msg("close error")
	} else {
		l.logger.Info().Msg("closed")
	}
	l.mu.Lock()
	l.closeErr = err
	l.mu.Unlock()
	return err
}

func (l *Link) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrLinkClosed
	}
	return nil
}
