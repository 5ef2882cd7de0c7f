package domain

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pion/webrtc/v4"
)

// MessageType is the "type" discriminator of every signaling envelope.
type MessageType string

const (
	TypeOffer     MessageType = "offer"
	TypeAnswer    MessageType = "answer"
	TypeCandidate MessageType = "candidate"
	TypeCallEnded MessageType = "call-ended"

	// relay control messages, never routed to a peer
	TypePing   MessageType = "ping"
	TypePong   MessageType = "pong"
	TypeError  MessageType = "error"
	TypeWhoAmI MessageType = "whoami"
)

// Reasons carried by call-ended.
const (
	ReasonHangup       = "hangup"
	ReasonBusy         = "busy"
	ReasonUnavailable  = "unavailable"
	ReasonDisconnected = "disconnected"
	ReasonFailed       = "failed"
)

var (
	ErrMissingDescription = errors.New("missing session description")
	ErrMissingCandidate   = errors.New("missing candidate")
	ErrDescriptionType    = errors.New("session description type does not match message type")
)

// Message is a routed signaling envelope.
type Message struct {
	Type      MessageType                `json:"type" validate:"required,oneof=offer answer candidate call-ended"`
	From      Identity                   `json:"from,omitempty" validate:"omitempty,max=64,printascii"`
	To        Identity                   `json:"to" validate:"required,max=64,printascii"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Reason    string                     `json:"reason,omitempty" validate:"max=64"`
}

// Control is a relay-level message that is not routed.
type Control struct {
	Type     MessageType `json:"type"`
	Identity Identity    `json:"identity,omitempty"`
	Error    string      `json:"error,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the envelope fields and that the payload matches the type.
func (m *Message) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid %q message: %w", m.Type, err)
	}
	switch m.Type {
	case TypeOffer, TypeAnswer:
		if m.SDP == nil || m.SDP.SDP == "" {
			return ErrMissingDescription
		}
		want := webrtc.SDPTypeOffer
		if m.Type == TypeAnswer {
			want = webrtc.SDPTypeAnswer
		}
		if m.SDP.Type != want {
			return ErrDescriptionType
		}
	case TypeCandidate:
		if m.Candidate == nil || m.Candidate.Candidate == "" {
			return ErrMissingCandidate
		}
	}
	return nil
}

func NewOffer(from, to Identity, sdp webrtc.SessionDescription) Message {
	return Message{Type: TypeOffer, From: from, To: to, SDP: &sdp}
}

func NewAnswer(from, to Identity, sdp webrtc.SessionDescription) Message {
	return Message{Type: TypeAnswer, From: from, To: to, SDP: &sdp}
}

func NewCandidate(from, to Identity, c webrtc.ICECandidateInit) Message {
	return Message{Type: TypeCandidate, From: from, To: to, Candidate: &c}
}

func NewCallEnded(from, to Identity, reason string) Message {
	return Message{Type: TypeCallEnded, From: from, To: to, Reason: reason}
}

// CandidateKey identifies a candidate for de-duplication.
func CandidateKey(c webrtc.ICECandidateInit) string {
	key := c.Candidate
	if c.SDPMid != nil {
		key += "|" + *c.SDPMid
	}
	if c.SDPMLineIndex != nil {
		key += fmt.Sprintf("|%d", *c.SDPMLineIndex)
	}
	return key
}
