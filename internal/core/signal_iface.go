package core

import (
	"errors"

	"github.com/dkeye/VoiceCall/internal/domain"
)

// Frame is a raw encoded signaling payload.
type Frame []byte

var ErrBackpressure = errors.New("backpressure")

// SignalChannel is the endpoint side of the relay transport.
// Messages are delivered in send order. Inbound is closed when the transport is lost.
type SignalChannel interface {
	Send(domain.Message) error
	Inbound() <-chan domain.Message
	Close()
}

// SignalConnection abstracts one relay-side client transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
