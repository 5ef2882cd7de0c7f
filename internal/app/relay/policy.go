package relay

import (
	"fmt"

	"github.com/dkeye/VoiceCall/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickPeer
)

// Policy decides what happens to a recipient whose send buffer is full.
type Policy interface {
	OnBackPressure(id domain.Identity) BackpressureAction
}

type KickPolicy struct{}

func (KickPolicy) OnBackPressure(domain.Identity) BackpressureAction { return KickPeer }

type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.Identity) BackpressureAction { return DropFrame }

// PolicyByName maps the configured policy name.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "kick":
		return KickPolicy{}, nil
	case "drop":
		return DropPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", name)
	}
}
