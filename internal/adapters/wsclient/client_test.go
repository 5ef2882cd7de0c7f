package wsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relayStub struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	ids   chan string
}

func newRelayStub(t *testing.T) *relayStub {
	t.Helper()
	r := &relayStub{conns: make(chan *websocket.Conn, 1), ids: make(chan string, 1)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		r.ids <- req.URL.Query().Get("id")
		r.conns <- ws
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *relayStub) url() string { return "ws" + strings.TrimPrefix(r.srv.URL, "http") }

func (r *relayStub) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-r.conns:
		t.Cleanup(func() { _ = ws.Close() })
		return ws
	case <-time.After(time.Second):
		t.Fatal("no connection")
		return nil
	}
}

func dial(t *testing.T, r *relayStub) *Client {
	t.Helper()
	c, err := Dial(context.Background(), Config{URL: r.url(), Identity: "alice"})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func readJSON(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func receive(t *testing.T, c *Client) domain.Message {
	t.Helper()
	select {
	case m, ok := <-c.Inbound():
		require.True(t, ok, "inbound closed")
		return m
	case <-time.After(time.Second):
		t.Fatal("nothing received")
		return domain.Message{}
	}
}

func TestDialSendsIdentity(t *testing.T) {
	r := newRelayStub(t)
	dial(t, r)
	r.accept(t)
	assert.Equal(t, "alice", <-r.ids)
}

func TestSendStampsSender(t *testing.T) {
	r := newRelayStub(t)
	c := dial(t, r)
	ws := r.accept(t)

	offer := domain.NewOffer("", "bob", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})
	require.NoError(t, c.Send(offer))

	var got domain.Message
	readJSON(t, ws, &got)
	assert.Equal(t, domain.TypeOffer, got.Type)
	assert.Equal(t, domain.Identity("alice"), got.From)
	assert.Equal(t, domain.Identity("bob"), got.To)
	require.NotNil(t, got.SDP)
	assert.Equal(t, "v=0", got.SDP.SDP)
}

func TestSendRejectsInvalidMessage(t *testing.T) {
	r := newRelayStub(t)
	c := dial(t, r)
	r.accept(t)

	err := c.Send(domain.Message{Type: domain.TypeCandidate, To: "bob"})
	assert.ErrorIs(t, err, domain.ErrMissingCandidate)
}

func TestInboundDeliversValidMessages(t *testing.T) {
	r := newRelayStub(t)
	c := dial(t, r)
	ws := r.accept(t)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"answer","from":"bob","to":"alice"}`)))
	require.NoError(t, ws.WriteJSON(domain.NewCallEnded("bob", "alice", domain.ReasonBusy)))

	m := receive(t, c)
	assert.Equal(t, domain.TypeCallEnded, m.Type)
	assert.Equal(t, domain.Identity("bob"), m.From)
	assert.Equal(t, domain.ReasonBusy, m.Reason)
}

func TestPingAnsweredWithPong(t *testing.T) {
	r := newRelayStub(t)
	dial(t, r)
	ws := r.accept(t)

	require.NoError(t, ws.WriteJSON(domain.Control{Type: domain.TypePing}))
	var ctl domain.Control
	readJSON(t, ws, &ctl)
	assert.Equal(t, domain.TypePong, ctl.Type)
}

func TestInboundClosedOnConnectionLoss(t *testing.T) {
	r := newRelayStub(t)
	c := dial(t, r)
	ws := r.accept(t)

	require.NoError(t, ws.Close())
	select {
	case _, ok := <-c.Inbound():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("inbound not closed")
	}
	assert.ErrorIs(t, c.Send(domain.NewCallEnded("", "bob", domain.ReasonHangup)), ErrClosed)
}

func TestCloseIsIdempotent(t *testing.T) {
	r := newRelayStub(t)
	c := dial(t, r)
	r.accept(t)

	c.Close()
	c.Close()
	_, ok := <-c.Inbound()
	assert.False(t, ok)
	assert.ErrorIs(t, c.Ping(), ErrClosed)
}

func TestTrySendBackpressure(t *testing.T) {
	c := &Client{send: make(chan core.Frame, 1)}
	require.NoError(t, c.TrySend(core.Frame("a")))
	assert.ErrorIs(t, c.TrySend(core.Frame("b")), core.ErrBackpressure)
}

func TestDialRequiresIdentity(t *testing.T) {
	_, err := Dial(context.Background(), Config{URL: "ws://127.0.0.1:1/api/ws/signal"})
	assert.ErrorIs(t, err, domain.ErrIdentityEmpty)
}

func TestCloseFlushesQueuedFrames(t *testing.T) {
	r := newRelayStub(t)
	c := dial(t, r)
	ws := r.accept(t)

	for i := range 10 {
		cand := webrtc.ICECandidateInit{Candidate: "candidate:" + string(rune('a'+i))}
		require.NoError(t, c.Send(domain.NewCandidate("", "bob", cand)))
	}
	require.NoError(t, c.Send(domain.NewCallEnded("", "bob", domain.ReasonHangup)))
	c.Close()

	for range 10 {
		var got domain.Message
		readJSON(t, ws, &got)
		assert.Equal(t, domain.TypeCandidate, got.Type)
	}
	var last domain.Message
	readJSON(t, ws, &last)
	assert.Equal(t, domain.TypeCallEnded, last.Type)
	assert.Equal(t, domain.ReasonHangup, last.Reason)
}

func TestHalfOpenRelayDetected(t *testing.T) {
	r := newRelayStub(t)
	c, err := Dial(context.Background(), Config{
		URL:        r.url(),
		Identity:   "alice",
		PingPeriod: 20 * time.Millisecond,
		PongWait:   100 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	r.accept(t)

	// the stub never reads, so pings go unanswered
	select {
	case _, ok := <-c.Inbound():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("half-open connection not detected")
	}
	assert.ErrorIs(t, c.Ping(), ErrClosed)
}

func TestPongsKeepConnectionAlive(t *testing.T) {
	r := newRelayStub(t)
	c, err := Dial(context.Background(), Config{
		URL:        r.url(),
		Identity:   "alice",
		PingPeriod: 20 * time.Millisecond,
		PongWait:   200 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	ws := r.accept(t)
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-c.Inbound():
		t.Fatal("connection dropped while relay answered pings")
	case <-time.After(500 * time.Millisecond):
	}
	assert.NoError(t, c.Ping())
}
