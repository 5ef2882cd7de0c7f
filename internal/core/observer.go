package core

import "github.com/dkeye/VoiceCall/internal/domain"

// Snapshot is a read-only view of a call session for the rendering layer.
type Snapshot struct {
	Local          domain.Identity
	Remote         domain.Identity
	Status         domain.CallStatus
	Muted          bool
	SpeakerEnabled bool
	LocalStream    LocalStream
	RemoteStream   RemoteStream
}

type NoticeKind string

const (
	NoticeSetupFailed       NoticeKind = "setup_failed"
	NoticeNegotiationFailed NoticeKind = "negotiation_failed"
	NoticeTransportLost     NoticeKind = "transport_lost"
	NoticePeerFailed        NoticeKind = "peer_failed"
	NoticeRemoteEnded       NoticeKind = "remote_ended"
	NoticeRejected          NoticeKind = "rejected"
)

// Notice is the side-channel notification of a failure or remote action.
type Notice struct {
	Kind   NoticeKind
	Remote domain.Identity
	Reason string
	Err    error
}

// Observer is implemented by the presentation layer.
// Callbacks run on the session goroutine and must not block.
type Observer interface {
	OnState(Snapshot)
	OnNotice(Notice)
}
