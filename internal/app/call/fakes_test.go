package call

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

var errCandidateBeforeRemote = errors.New("candidate applied before remote description")

type fakeSignal struct {
	in        chan domain.Message
	closeOnce sync.Once

	mu      sync.Mutex
	sent    []domain.Message
	sendErr error
}

func newFakeSignal() *fakeSignal {
	return &fakeSignal{in: make(chan domain.Message, 64)}
}

func (f *fakeSignal) Send(m domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeSignal) Inbound() <-chan domain.Message { return f.in }

func (f *fakeSignal) Close() { f.closeOnce.Do(func() { close(f.in) }) }

func (f *fakeSignal) deliver(m domain.Message) { f.in <- m }

func (f *fakeSignal) sentOf(t domain.MessageType) []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for _, m := range f.sent {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSignal) all() []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.sent...)
}

type fakeTrack struct {
	mu      sync.Mutex
	enabled bool
	stopped int
}

func (t *fakeTrack) Track() webrtc.TrackLocal { return nil }

func (t *fakeTrack) SetEnabled(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = on
}

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped++
}

func (t *fakeTrack) stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeStream struct {
	id     string
	tracks []*fakeTrack

	mu      sync.Mutex
	stopped int
}

func (s *fakeStream) ID() string { return s.id }

func (s *fakeStream) AudioTracks() []core.LocalAudioTrack {
	out := make([]core.LocalAudioTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *fakeStream) Stop() {
	s.mu.Lock()
	s.stopped++
	first := s.stopped == 1
	s.mu.Unlock()
	if first {
		for _, t := range s.tracks {
			t.Stop()
		}
	}
}

func (s *fakeStream) stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeMedia struct {
	mu      sync.Mutex
	openErr error
	streams []*fakeStream
}

func (m *fakeMedia) Open(context.Context) (core.LocalStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	st := &fakeStream{
		id:     fmt.Sprintf("stream-%d", len(m.streams)+1),
		tracks: []*fakeTrack{{enabled: true}, {enabled: true}},
	}
	m.streams = append(m.streams, st)
	return st, nil
}

func (m *fakeMedia) setOpenErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

func (m *fakeMedia) opened() []*fakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*fakeStream(nil), m.streams...)
}

type fakeLink struct {
	mu         sync.Mutex
	ops        []string
	remoteSet  bool
	candidates []string
	violations []error
	closed     int
	liveAtOpen int

	offerErr   error
	offerGate  chan struct{}
	answerGate chan struct{}

	onCandidate func(webrtc.ICECandidateInit)
	onTrack     func(core.RemoteStream)
	onState     func(webrtc.PeerConnectionState)
}

func (l *fakeLink) record(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

func (l *fakeLink) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	l.record("create-offer")
	if l.offerGate != nil {
		select {
		case <-l.offerGate:
		case <-ctx.Done():
			return webrtc.SessionDescription{}, ctx.Err()
		}
	}
	if l.offerErr != nil {
		return webrtc.SessionDescription{}, l.offerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (l *fakeLink) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	l.record("create-answer")
	if l.answerGate != nil {
		select {
		case <-l.answerGate:
		case <-ctx.Done():
			return webrtc.SessionDescription{}, ctx.Err()
		}
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (l *fakeLink) SetLocalDescription(_ context.Context, d webrtc.SessionDescription) error {
	l.record("set-local:" + d.Type.String())
	return nil
}

func (l *fakeLink) SetRemoteDescription(_ context.Context, d webrtc.SessionDescription) error {
	l.record("set-remote:" + d.Type.String())
	l.mu.Lock()
	l.remoteSet = true
	l.mu.Unlock()
	return nil
}

func (l *fakeLink) AddCandidate(c webrtc.ICECandidateInit) error {
	l.record("add-candidate")
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.remoteSet {
		l.violations = append(l.violations, errCandidateBeforeRemote)
		return errCandidateBeforeRemote
	}
	l.candidates = append(l.candidates, c.Candidate)
	return nil
}

func (l *fakeLink) AddTrack(webrtc.TrackLocal) error {
	l.record("add-track")
	return nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed++
	return nil
}

func (l *fakeLink) OnLocalCandidate(fn func(webrtc.ICECandidateInit)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onCandidate = fn
}

func (l *fakeLink) OnRemoteTrack(fn func(core.RemoteStream)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onTrack = fn
}

func (l *fakeLink) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onState = fn
}

func (l *fakeLink) emitCandidate(c string) {
	l.mu.Lock()
	fn := l.onCandidate
	l.mu.Unlock()
	if fn != nil {
		fn(webrtc.ICECandidateInit{Candidate: c})
	}
}

func (l *fakeLink) emitTrack(rs core.RemoteStream) {
	l.mu.Lock()
	fn := l.onTrack
	l.mu.Unlock()
	if fn != nil {
		fn(rs)
	}
}

func (l *fakeLink) emitState(st webrtc.PeerConnectionState) {
	l.mu.Lock()
	fn := l.onState
	l.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (l *fakeLink) snapshot() (ops, candidates []string, violations []error, closed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...),
		append([]string(nil), l.candidates...),
		append([]error(nil), l.violations...),
		l.closed
}

func (l *fakeLink) hasOp(op string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range l.ops {
		if o == op {
			return true
		}
	}
	return false
}

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed > 0
}

type fakeLinks struct {
	mu     sync.Mutex
	links  []*fakeLink
	newErr error
	// prepare configures each link before it is handed out.
	prepare func(*fakeLink)
}

func (f *fakeLinks) NewPeerLink() (core.PeerLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	l := &fakeLink{}
	for _, old := range f.links {
		if !old.isClosed() {
			l.liveAtOpen++
		}
	}
	if f.prepare != nil {
		f.prepare(l)
	}
	f.links = append(f.links, l)
	return l, nil
}

func (f *fakeLinks) all() []*fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeLink(nil), f.links...)
}

func (f *fakeLinks) last() *fakeLink {
	all := f.all()
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

type fakeRemote struct{ id string }

func (r *fakeRemote) ID() string       { return r.id }
func (r *fakeRemote) StreamID() string { return "remote-" + r.id }

func (r *fakeRemote) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	return nil, nil, errors.New("not readable")
}

type fakeOutput struct {
	mu      sync.Mutex
	played  []core.RemoteStream
	speaker []bool
}

func (o *fakeOutput) Play(_ context.Context, rs core.RemoteStream) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.played = append(o.played, rs)
}

func (o *fakeOutput) SetSpeaker(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.speaker = append(o.speaker, on)
}

func (o *fakeOutput) routes() []bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]bool(nil), o.speaker...)
}

func (o *fakeOutput) plays() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.played)
}

type fakeObserver struct {
	mu       sync.Mutex
	statuses []domain.CallStatus
	notices  []core.Notice
}

func (o *fakeObserver) OnState(s core.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n := len(o.statuses); n == 0 || o.statuses[n-1] != s.Status {
		o.statuses = append(o.statuses, s.Status)
	}
}

func (o *fakeObserver) OnNotice(n core.Notice) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notices = append(o.notices, n)
}

func (o *fakeObserver) history() []domain.CallStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.CallStatus(nil), o.statuses...)
}

func (o *fakeObserver) noticeKinds() []core.NoticeKind {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]core.NoticeKind, 0, len(o.notices))
	for _, n := range o.notices {
		out = append(out, n.Kind)
	}
	return out
}
