package call

import (
	"context"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

type remoteCandidate struct {
	from domain.Identity
	cand webrtc.ICECandidateInit
}

// seenKey scopes candidate de-duplication to the sender.
func seenKey(from domain.Identity, c webrtc.ICECandidateInit) string {
	return string(from) + "|" + domain.CandidateKey(c)
}

// leg holds the resources of exactly one call. It is never reused once released.
type leg struct {
	ctx    context.Context
	cancel context.CancelFunc

	linkID uint64
	link   core.PeerLink
	stream core.LocalStream

	// remote is set at most once.
	remote    domain.Identity
	contacted bool

	// gen is bumped whenever in-flight negotiation results must be discarded.
	gen           uint64
	inflight      step
	offerSent     bool
	remoteDescSet bool

	pendingLocal  []webrtc.ICECandidateInit
	pendingRemote []remoteCandidate
	seen          map[string]struct{}

	remoteStream core.RemoteStream
	released     bool
}

func newLeg(parent context.Context, stream core.LocalStream) *leg {
	ctx, cancel := context.WithCancel(parent)
	return &leg{
		ctx:    ctx,
		cancel: cancel,
		stream: stream,
		seen:   make(map[string]struct{}),
	}
}

// active reports whether the leg belongs to a pending or running call.
func (l *leg) active() bool {
	return !l.released && (!l.remote.IsZero() || l.inflight != stepNone)
}

// owns reports whether a callback from linkID belongs to this leg.
func (l *leg) owns(linkID uint64) bool {
	return !l.released && l.linkID == linkID
}

// release stops local tracks and closes the link. Idempotent.
func (l *leg) release() error {
	if l.released {
		return nil
	}
	l.released = true
	l.gen++
	l.inflight = stepNone
	l.cancel()
	l.stream.Stop()
	var err error
	if l.link != nil {
		err = l.link.Close()
	}
	l.pendingLocal = nil
	l.pendingRemote = nil
	return err
}
