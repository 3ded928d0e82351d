package ircd

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newRegisterTestServer() *Server {
	cfg := &Config{ServerName: "irc.test", NetworkName: "TestNet", SID: "00T"}
	s := NewServer(cfg, nil)
	RegisterCoreCommands(s)
	s.Address.Insert(&Conf{Kind: ConfClient, UserMask: "*", HostMask: "*"})
	return s
}

func newRegisterTestClient(s *Server) (c *Client, collect func() string) {
	server, other := net.Pipe()
	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		io.Copy(&buf, other)
		close(done)
	}()
	c = NewClient(s, server)
	c.Host = "host.example.com"
	c.RealHost = "host.example.com"
	collect = func() string {
		server.Close()
		<-done
		return buf.String()
	}
	return c, collect
}

func TestHandleNickRejectsInvalidNickname(t *testing.T) {
	s := newRegisterTestServer()
	c, collect := newRegisterTestClient(s)

	handleNick(s, c, &MsgBuf{Params: []string{"1invalid"}})
	out := collect()

	assert.Contains(t, out, "421")
	assert.Empty(t, c.Nick)
}

func TestHandleNickRejectsInUse(t *testing.T) {
	s := newRegisterTestServer()
	first, firstCollect := newRegisterTestClient(s)
	handleNick(s, first, &MsgBuf{Params: []string{"alice"}})
	firstCollect()

	second, secondCollect := newRegisterTestClient(s)
	handleNick(s, second, &MsgBuf{Params: []string{"alice"}})
	out := secondCollect()

	assert.Contains(t, out, "433")
}

func TestHandleNickRebindsOnChange(t *testing.T) {
	s := newRegisterTestServer()
	c, collect := newRegisterTestClient(s)

	handleNick(s, c, &MsgBuf{Params: []string{"alice"}})
	handleNick(s, c, &MsgBuf{Params: []string{"alicenew"}})
	collect()

	_, stillThere := s.Lookup("alice")
	found, ok := s.Lookup("alicenew")
	assert.False(t, stillThere)
	if assert.True(t, ok) {
		assert.Same(t, c, found)
	}
}

func TestRegistrationCompletesOnceNickAndUserAreSet(t *testing.T) {
	s := newRegisterTestServer()
	c, collect := newRegisterTestClient(s)

	handleNick(s, c, &MsgBuf{Params: []string{"alice"}})
	handleUser(s, c, &MsgBuf{Params: []string{"alice", "0", "*", "Alice Example"}})
	out := collect()

	assert.Equal(t, StateClient, c.CurrentState())
	assert.Contains(t, out, "001")
	assert.NotEmpty(t, c.UID)
}

func TestRegistrationWaitsOnCapNegotiation(t *testing.T) {
	s := newRegisterTestServer()
	c, collect := newRegisterTestClient(s)
	c.Caps.Negotiating = true

	handleNick(s, c, &MsgBuf{Params: []string{"alice"}})
	handleUser(s, c, &MsgBuf{Params: []string{"alice", "0", "*", "Alice Example"}})
	out := collect()

	assert.NotEqual(t, StateClient, c.CurrentState())
	assert.Empty(t, out)
}

func TestRegistrationRejectsWithoutMatchingClientBlock(t *testing.T) {
	s := NewServer(&Config{ServerName: "irc.test", NetworkName: "TestNet", SID: "00T"}, nil)
	RegisterCoreCommands(s)
	c, collect := newRegisterTestClient(s)

	handleNick(s, c, &MsgBuf{Params: []string{"alice"}})
	handleUser(s, c, &MsgBuf{Params: []string{"alice", "0", "*", "Alice Example"}})
	out := collect()

	assert.Contains(t, out, "481")
	assert.Equal(t, StateClosing, c.CurrentState())
}

func TestRegistrationRejectsOnKline(t *testing.T) {
	s := newRegisterTestServer()
	s.Address.Insert(&Conf{Kind: ConfKill, UserMask: "*", HostMask: "*.example.com", Reason: "go away"})
	c, collect := newRegisterTestClient(s)

	handleNick(s, c, &MsgBuf{Params: []string{"alice"}})
	handleUser(s, c, &MsgBuf{Params: []string{"alice", "0", "*", "Alice Example"}})
	out := collect()

	assert.Contains(t, out, "465")
	assert.Contains(t, out, "go away")
	assert.Equal(t, StateClosing, c.CurrentState())
}

func TestHandlePingRepliesWithPong(t *testing.T) {
	s := newRegisterTestServer()
	c, collect := newRegisterTestClient(s)

	handlePing(s, c, &MsgBuf{Params: []string{"token123"}})
	out := collect()

	assert.Contains(t, out, "PONG")
	assert.Contains(t, out, "token123")
}

func TestHandleQuitMarksClientClosing(t *testing.T) {
	s := newRegisterTestServer()
	c, collect := newRegisterTestClient(s)

	handleQuit(s, c, &MsgBuf{Params: []string{"bye"}})
	collect()

	assert.Equal(t, StateClosing, c.CurrentState())
}

func TestValidNickRejectsLeadingDigit(t *testing.T) {
	assert.False(t, validNick("1abc"))
	assert.True(t, validNick("abc"))
	assert.True(t, validNick("_abc123"))
	assert.False(t, validNick(""))
}

func TestBase36PadZeroFills(t *testing.T) {
	assert.Equal(t, "000001", base36Pad(1, 6))
	assert.Equal(t, "00000Z", base36Pad(35, 6))
}
