package ircd

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChannelTestServer() *Server {
	cfg := &Config{ServerName: "irc.test", NetworkName: "TestNet", SID: "00T"}
	s := NewServer(cfg, nil)
	RegisterChannelCommands(s)
	return s
}

func newChannelTestClient(s *Server, nick string) (c *Client, collect func() string) {
	server, other := net.Pipe()
	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		io.Copy(&buf, other)
		close(done)
	}()
	c = NewClient(s, server)
	c.Nick = nick
	c.User = nick
	c.Host = "example.com"
	c.State = StateClient
	collect = func() string {
		server.Close()
		<-done
		return buf.String()
	}
	return c, collect
}

func TestHandleJoinAddsClientToChannel(t *testing.T) {
	s := newChannelTestServer()
	c, collect := newChannelTestClient(s, "alice")

	handleJoin(s, c, &MsgBuf{Params: []string{"#test"}})
	out := collect()

	ch, ok := s.LookupChannel("#test")
	require.True(t, ok)
	assert.True(t, ch.Has(c))
	assert.Contains(t, out, "JOIN")
}

func TestHandleJoinMultipleChannelsCommaSeparated(t *testing.T) {
	s := newChannelTestServer()
	c, collect := newChannelTestClient(s, "alice")

	handleJoin(s, c, &MsgBuf{Params: []string{"#a,#b"}})
	collect()

	_, okA := s.LookupChannel("#a")
	_, okB := s.LookupChannel("#b")
	assert.True(t, okA)
	assert.True(t, okB)
}

func TestHandleJoinRejectedByCanJoinHook(t *testing.T) {
	s := newChannelTestServer()
	s.Hooks.AddCanJoin(PriorityNormal, func(d *CanJoinData) {
		d.Approved = 1
		d.Numeric = ErrCannotSendToChan
		d.Reason = "banned"
	})
	c, collect := newChannelTestClient(s, "alice")

	handleJoin(s, c, &MsgBuf{Params: []string{"#test"}})
	out := collect()

	ch, _ := s.LookupChannel("#test")
	assert.False(t, ch.Has(c))
	assert.Contains(t, out, "banned")
}

func TestHandleJoinRejectsRegisteredOnlyChannelWithoutAccount(t *testing.T) {
	s := newChannelTestServer()
	ch := s.channel("#reg")
	ch.Modes.RegisteredOnly = true
	c, collect := newChannelTestClient(s, "alice")

	handleJoin(s, c, &MsgBuf{Params: []string{"#reg"}})
	collect()

	assert.False(t, ch.Has(c))
}

func TestHandlePartRemovesClientFromChannel(t *testing.T) {
	s := newChannelTestServer()
	c, collect := newChannelTestClient(s, "alice")

	handleJoin(s, c, &MsgBuf{Params: []string{"#test"}})
	handlePart(s, c, &MsgBuf{Params: []string{"#test"}})
	out := collect()

	ch, _ := s.LookupChannel("#test")
	assert.False(t, ch.Has(c))
	assert.Contains(t, out, "PART")
}

func TestHandlePartIgnoresChannelNotJoined(t *testing.T) {
	s := newChannelTestServer()
	c, collect := newChannelTestClient(s, "alice")

	handlePart(s, c, &MsgBuf{Params: []string{"#nowhere"}})
	out := collect()

	assert.Empty(t, out)
}

func TestHandlePrivmsgChannelDeliversToOtherMembers(t *testing.T) {
	s := newChannelTestServer()
	sender, senderCollect := newChannelTestClient(s, "alice")
	receiver, receiverCollect := newChannelTestClient(s, "bob")

	handleJoin(s, sender, &MsgBuf{Params: []string{"#test"}})
	handleJoin(s, receiver, &MsgBuf{Params: []string{"#test"}})
	senderCollect()

	handlePrivmsg(s, sender, &MsgBuf{Params: []string{"#test", "hello"}})
	out := receiverCollect()

	assert.Contains(t, out, "PRIVMSG")
	assert.Contains(t, out, "hello")
}

func TestHandlePrivmsgUserNoSuchNick(t *testing.T) {
	s := newChannelTestServer()
	c, collect := newChannelTestClient(s, "alice")

	handlePrivmsg(s, c, &MsgBuf{Params: []string{"nosuchnick", "hello"}})
	out := collect()

	assert.Contains(t, out, "401")
}

func TestHandlePrivmsgUserDeliversToTarget(t *testing.T) {
	s := newChannelTestServer()
	sender, senderCollect := newChannelTestClient(s, "alice")
	receiver, receiverCollect := newChannelTestClient(s, "bob")
	s.bindNick(receiver, "bob")

	handlePrivmsg(s, sender, &MsgBuf{Params: []string{"bob", "hello there"}})
	senderCollect()
	out := receiverCollect()

	assert.Contains(t, out, "PRIVMSG")
	assert.Contains(t, out, "hello there")
}

func TestHandleModeOwnUserQueriesCurrentModes(t *testing.T) {
	s := newChannelTestServer()
	c, collect := newChannelTestClient(s, "alice")

	handleMode(s, c, &MsgBuf{Params: []string{"alice"}})
	out := collect()

	assert.Contains(t, out, "221")
}

func TestHandleModeRejectsChangingOtherUser(t *testing.T) {
	s := newChannelTestServer()
	c, collect := newChannelTestClient(s, "alice")

	handleMode(s, c, &MsgBuf{Params: []string{"bob", "+i"}})
	out := collect()

	assert.Contains(t, out, "502")
}

func TestHandleChannelModeSetsRegisteredOnly(t *testing.T) {
	s := newChannelTestServer()
	c, collect := newChannelTestClient(s, "alice")

	handleMode(s, c, &MsgBuf{Params: []string{"#test", "+R"}})
	collect()

	ch, _ := s.LookupChannel("#test")
	assert.True(t, ch.Modes.RegisteredOnly)
}
