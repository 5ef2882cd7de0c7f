package signal

import "github.com/dkeye/VoiceCall/internal/domain"

func (ctl *SignalWSController) handlePing(id domain.Identity) {
	ctl.Hub.Reply(id, domain.Control{Type: domain.TypePong})
}

func (ctl *SignalWSController) handleWhoAmI(id domain.Identity) {
	ctl.Hub.Reply(id, domain.Control{Type: domain.TypeWhoAmI, Identity: id})
}

func (ctl *SignalWSController) sendError(id domain.Identity, reason string) {
	ctl.Hub.Reply(id, domain.Control{Type: domain.TypeError, Error: reason})
}
