package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/VoiceCall/internal/app/relay"
	"github.com/dkeye/VoiceCall/internal/config"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Type     domain.MessageType `json:"type"`
	From     domain.Identity    `json:"from"`
	To       domain.Identity    `json:"to"`
	Reason   string             `json:"reason"`
	Identity domain.Identity    `json:"identity"`
	Error    string             `json:"error"`
}

func newTestServer(t *testing.T) (*httptest.Server, *relay.Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := relay.NewHub(relay.Config{})
	cfg := &config.Config{
		Mode: "test",
		Relay: config.RelayConfig{
			Secret:     "test-secret",
			PingPeriod: time.Minute,
		},
	}
	srv := httptest.NewServer(SetupRouter(ctx, cfg, hub))
	t.Cleanup(srv.Close)
	return srv, hub
}

func dialAs(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal?id=" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	who := readEnvelope(t, conn)
	require.Equal(t, domain.TypeWhoAmI, who.Type)
	require.Equal(t, domain.Identity(id), who.Identity)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func offerTo(to domain.Identity) domain.Message {
	return domain.Message{
		Type: domain.TypeOffer,
		From: "mallory",
		To:   to,
		SDP:  &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWhoAmIKeepsSessionIdentity(t *testing.T) {
	srv, _ := newTestServer(t)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	identity := func() domain.Identity {
		resp, err := client.Get(srv.URL + "/api/whoami")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			Identity domain.Identity `json:"identity"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body.Identity
	}

	first := identity()
	require.False(t, first.IsZero())
	assert.Equal(t, first, identity())
}

func TestSessionCookieUsableOverPlainHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/whoami")
	require.NoError(t, err)
	defer resp.Body.Close()

	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "VoiceCallSessions", c.Name)
	assert.False(t, c.Secure)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, "/", c.Path)
}

func TestInvalidIdentityRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/whoami?id=" + strings.Repeat("x", domain.MaxIdentityLen+1))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRelayRoutesAndRewritesSender(t *testing.T) {
	srv, hub := newTestServer(t)
	alice := dialAs(t, srv, "alice")
	bob := dialAs(t, srv, "bob")

	assert.Equal(t, []domain.Identity{"alice", "bob"}, hub.Online())

	require.NoError(t, alice.WriteJSON(offerTo("bob")))
	got := readEnvelope(t, bob)
	assert.Equal(t, domain.TypeOffer, got.Type)
	assert.Equal(t, domain.Identity("alice"), got.From)
	assert.Equal(t, domain.Identity("bob"), got.To)

	partner, ok := hub.Partner("alice")
	require.True(t, ok)
	assert.Equal(t, domain.Identity("bob"), partner)
}

func TestRelayOfflineRecipient(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dialAs(t, srv, "alice")

	require.NoError(t, alice.WriteJSON(offerTo("ghost")))
	got := readEnvelope(t, alice)
	assert.Equal(t, domain.TypeCallEnded, got.Type)
	assert.Equal(t, domain.Identity("ghost"), got.From)
	assert.Equal(t, domain.ReasonUnavailable, got.Reason)
}

func TestRelayPartnerDisconnect(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dialAs(t, srv, "alice")
	bob := dialAs(t, srv, "bob")

	require.NoError(t, alice.WriteJSON(offerTo("bob")))
	readEnvelope(t, bob)
	require.NoError(t, bob.Close())

	got := readEnvelope(t, alice)
	assert.Equal(t, domain.TypeCallEnded, got.Type)
	assert.Equal(t, domain.Identity("bob"), got.From)
	assert.Equal(t, domain.ReasonDisconnected, got.Reason)
}

func TestRelayControlMessages(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dialAs(t, srv, "alice")

	require.NoError(t, alice.WriteJSON(domain.Control{Type: domain.TypePing}))
	assert.Equal(t, domain.TypePong, readEnvelope(t, alice).Type)

	require.NoError(t, alice.WriteJSON(domain.Control{Type: domain.TypeWhoAmI}))
	who := readEnvelope(t, alice)
	assert.Equal(t, domain.TypeWhoAmI, who.Type)
	assert.Equal(t, domain.Identity("alice"), who.Identity)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"join"}`)))
	bad := readEnvelope(t, alice)
	assert.Equal(t, domain.TypeError, bad.Type)
	assert.Equal(t, "unknown_type", bad.Error)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"offer","to":"bob"}`)))
	invalid := readEnvelope(t, alice)
	assert.Equal(t, domain.TypeError, invalid.Type)
	assert.NotEmpty(t, invalid.Error)
}

func TestPeersListing(t *testing.T) {
	srv, _ := newTestServer(t)
	dialAs(t, srv, "carol")

	resp, err := http.Get(srv.URL + "/api/peers?id=observer")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Peers []domain.Identity `json:"peers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []domain.Identity{"carol"}, body.Peers)
}
