package call

import (
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// event is anything the run loop consumes. Every state change goes through it.
type event any

type (
	startIntent   struct{ to domain.Identity }
	endIntent     struct{}
	muteIntent    struct{}
	speakerIntent struct{}

	inbound       struct{ msg domain.Message }
	transportLost struct{}

	// PeerLink callbacks, tagged with the link that produced them.
	localCandidate struct {
		link uint64
		cand webrtc.ICECandidateInit
	}
	remoteTrack struct {
		link   uint64
		stream core.RemoteStream
	}
	linkState struct {
		link  uint64
		state webrtc.PeerConnectionState
	}

	// negotiated carries the result of a worker back to the loop.
	negotiated struct {
		link uint64
		gen  uint64
		step step
		desc webrtc.SessionDescription
		err  error
	}

	// callback runs on the loop goroutine.
	callback func()
)

type step int

const (
	stepNone step = iota
	stepOffer
	stepAnswer
	stepApplyAnswer
)

func (s step) String() string {
	switch s {
	case stepOffer:
		return "offer"
	case stepAnswer:
		return "answer"
	case stepApplyAnswer:
		return "apply_answer"
	default:
		return "none"
	}
}
