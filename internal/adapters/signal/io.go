package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.cfg.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.cfg.WriteTimeout)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, id domain.Identity, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("identity", string(id)).Msg("readPump closing")
		ctl.Hub.Unregister(id, c)
		c.Close()
		cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("identity", string(id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "signal").Str("identity", string(id)).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(id, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(id domain.Identity, data []byte) {
	var env struct {
		Type domain.MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(id, "bad_json")
		return
	}

	switch env.Type {
	case domain.TypePing:
		ctl.handlePing(id)
	case domain.TypePong:
	case domain.TypeWhoAmI:
		ctl.handleWhoAmI(id)
	case domain.TypeOffer, domain.TypeAnswer, domain.TypeCandidate, domain.TypeCallEnded:
		ctl.handleRouted(id, data)
	default:
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unknown signal")
		ctl.sendError(id, "unknown_type")
	}
}

func (ctl *SignalWSController) handleRouted(id domain.Identity, data []byte) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad payload")
		ctl.sendError(id, "bad_payload")
		return
	}
	if err := ctl.Hub.Route(id, msg); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("identity", string(id)).Str("type", string(msg.Type)).Msg("route rejected")
		ctl.sendError(id, err.Error())
	}
}
