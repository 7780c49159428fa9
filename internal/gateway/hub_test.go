package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient builds a registered-but-unannounced client without a real
// connection. Tests that exercise fan-out read from the send channel
// directly instead of running the write pump.
func newTestClient(h *Hub, id string) *Client {
	return &Client{
		ID:   id,
		send: make(chan []byte, 8),
		done: make(chan struct{}),
		hub:  h,
	}
}

func recvJSON(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestAdmitAddsClientToPrimarySetAndRoleBucket(t *testing.T) {
	h := NewHub(DefaultConnectionConfig())
	c := newTestClient(h, "c1")

	total, _ := h.Stats()
	require.Equal(t, 0, total, "unannounced clients are invisible")

	h.admit(c, RoleOverlay)

	total, byRole := h.Stats()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, byRole[RoleOverlay])
	assert.Equal(t, RoleOverlay, c.Role())
}

func TestAdmitIsIdempotent(t *testing.T) {
	h := NewHub(DefaultConnectionConfig())
	c := newTestClient(h, "c1")

	joins := 0
	h.OnJoin(func(*Client, Role) { joins++ })

	h.admit(c, RoleOverlay)
	h.admit(c, RoleControls) // second announce is ignored

	total, byRole := h.Stats()
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, byRole[RoleControls])
	assert.Equal(t, RoleOverlay, c.Role())
	assert.Equal(t, 1, joins)
}

func TestUnregisterRemovesClientAndNotifiesOnce(t *testing.T) {
	h := NewHub(DefaultConnectionConfig())
	c := newTestClient(h, "c1")

	var leaves []Role
	h.OnLeave(func(_ *Client, role Role) { leaves = append(leaves, role) })

	h.admit(c, RoleResults)
	h.unregister(c)
	h.unregister(c) // read and write pumps both call this

	total, byRole := h.Stats()
	assert.Equal(t, 0, total)
	assert.Equal(t, 0, byRole[RoleResults])
	assert.Equal(t, []Role{RoleResults}, leaves)
}

func TestBroadcastReachesEveryAdmittedClient(t *testing.T) {
	h := NewHub(DefaultConnectionConfig())
	overlay := newTestClient(h, "c1")
	controls := newTestClient(h, "c2")
	inert := newTestClient(h, "c3")

	h.admit(overlay, RoleOverlay)
	h.admit(controls, RoleControls)
	// c3 never announces.

	h.handleOutbound(outbound{msg: StateMessage(MessageGiveawayInfo, nil)})

	for _, c := range []*Client{overlay, controls} {
		msg := recvJSON(t, c)
		assert.Equal(t, MessageGiveawayInfo, msg.Type)
	}
	assert.Empty(t, inert.send, "inert clients receive nothing")
}

func TestBroadcastRoleTargetsOneBucket(t *testing.T) {
	h := NewHub(DefaultConnectionConfig())
	overlay := newTestClient(h, "c1")
	results := newTestClient(h, "c2")

	h.admit(overlay, RoleOverlay)
	h.admit(results, RoleResults)

	h.handleOutbound(outbound{msg: StateMessage(MessageGiveawayInfo, nil), role: RoleResults})

	msg := recvJSON(t, results)
	assert.Equal(t, MessageGiveawayInfo, msg.Type)
	assert.Empty(t, overlay.send)
}

func TestSendToTargetsOneClient(t *testing.T) {
	h := NewHub(DefaultConnectionConfig())
	a := newTestClient(h, "c1")
	b := newTestClient(h, "c2")

	h.admit(a, RoleOverlay)
	h.admit(b, RoleOverlay)

	h.handleOutbound(outbound{msg: StateMessage(MessageGiveawayTick, nil), target: a})

	msg := recvJSON(t, a)
	assert.Equal(t, MessageGiveawayTick, msg.Type)
	assert.Empty(t, b.send)
}

func TestSendToUnregisteredClientIsDropped(t *testing.T) {
	h := NewHub(DefaultConnectionConfig())
	a := newTestClient(h, "c1")

	h.admit(a, RoleOverlay)
	h.unregister(a)

	h.handleOutbound(outbound{msg: StateMessage(MessageGiveawayInfo, nil), target: a})
	assert.Empty(t, a.send)
}

func TestInboundAnnouncementAdmitsClient(t *testing.T) {
	h := NewHub(DefaultConnectionConfig())
	c := newTestClient(h, "c1")

	c.handleInbound([]byte(`{"type":"announce","role":"controls"}`))

	total, byRole := h.Stats()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, byRole[RoleControls])
}

func TestInboundGarbageAndUnknownRolesAreIgnored(t *testing.T) {
	h := NewHub(DefaultConnectionConfig())
	c := newTestClient(h, "c1")

	c.handleInbound([]byte(`not json`))
	c.handleInbound([]byte(`{"type":"chat","role":"overlay"}`))
	c.handleInbound([]byte(`{"type":"announce","role":"admin"}`))

	total, _ := h.Stats()
	assert.Equal(t, 0, total)
}

func TestConnectAnnounceReceiveOverRealWebSocket(t *testing.T) {
	h := NewHub(DefaultConnectionConfig())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Start(ctx)

	joined := make(chan Role, 1)
	h.OnJoin(func(_ *Client, role Role) { joined <- role })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Upgrade(w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "announce", "role": "overlay"}))

	select {
	case role := <-joined:
		assert.Equal(t, RoleOverlay, role)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for join notification")
	}

	h.Broadcast(StateMessage(MessageGiveawayInfo, nil))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageGiveawayInfo, msg.Type)
}

func TestDisconnectTriggersLeaveNotification(t *testing.T) {
	h := NewHub(DefaultConnectionConfig())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Start(ctx)

	var mu sync.Mutex
	var left []Role
	h.OnLeave(func(_ *Client, role Role) {
		mu.Lock()
		left = append(left, role)
		mu.Unlock()
	})
	joined := make(chan struct{}, 1)
	h.OnJoin(func(*Client, Role) { joined <- struct{}{} })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Upgrade(w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "announce", "role": "results"}))
	select {
	case <-joined:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for join")
	}

	conn.Close()

	require.Eventually(t, func() bool {
		total, _ := h.Stats()
		mu.Lock()
		defer mu.Unlock()
		return total == 0 && len(left) == 1 && left[0] == RoleResults
	}, 2*time.Second, 10*time.Millisecond)
}
