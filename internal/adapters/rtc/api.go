package rtc

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ICEServers          []string
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAliveInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{
		ICEServers:          []string{"stun:stun.l.google.com:19302"},
		DisconnectedTimeout: 30 * time.Second,
		FailedTimeout:       60 * time.Second,
		KeepAliveInterval:   2 * time.Second,
	}
}

// Factory builds PeerLinks sharing one pion API (codecs, interceptors, ICE settings).
type Factory struct {
	api  *webrtc.API
	conf webrtc.Configuration
	seq  atomic.Uint64
}

var _ core.PeerLinkFactory = (*Factory)(nil)

func NewFactory(cfg Config) (*Factory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if cfg.DisconnectedTimeout > 0 && cfg.FailedTimeout > 0 && cfg.KeepAliveInterval > 0 {
		se.SetICETimeouts(cfg.DisconnectedTimeout, cfg.FailedTimeout, cfg.KeepAliveInterval)
	}

	conf := webrtc.Configuration{}
	if len(cfg.ICEServers) > 0 {
		conf.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	log.Info().Str("module", "adapters.rtc").Strs("ice_servers", cfg.ICEServers).Msg("peer link factory ready")
	return &Factory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithInterceptorRegistry(registry),
			webrtc.WithSettingEngine(se),
		),
		conf: conf,
	}, nil
}

func (f *Factory) NewPeerLink() (core.PeerLink, error) {
	return f.NewLink()
}

// NewLink is NewPeerLink returning the concrete type.
func (f *Factory) NewLink() (*Link, error) {
	pc, err := f.api.NewPeerConnection(f.conf)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return newLink(pc, fmt.Sprintf("pc-%d", f.seq.Add(1))), nil
}
