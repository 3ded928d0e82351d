package peering

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/solanum-irc/solanum/ircd"
)

func newTestManager() *Manager {
	cfg := &ircd.Config{ServerName: "irc.test", NetworkName: "TestNet", SID: "00T"}
	s := ircd.NewServer(cfg, nil)
	return NewManager(s)
}

func TestManagerAddPeerAndForEachPeer(t *testing.T) {
	m := newTestManager()
	m.AddPeer("peer1.test:6668", (*grpc.ClientConn)(nil))
	m.AddPeer("peer2.test:6668", (*grpc.ClientConn)(nil))

	seen := map[string]bool{}
	m.ForEachPeer(func(address string, conn *grpc.ClientConn) {
		seen[address] = true
	})

	assert.True(t, seen["peer1.test:6668"])
	assert.True(t, seen["peer2.test:6668"])
}

func TestPeerServerClientJoinedAcks(t *testing.T) {
	m := newTestManager()
	p := &peerServer{manager: m}

	ack, err := p.ClientJoined(context.Background(), &ClientInfo{Nickname: "alice", ServerName: "irc2.test"})
	require.NoError(t, err)
	assert.True(t, ack.Success)
}

func TestPeerServerClientLeftAcks(t *testing.T) {
	m := newTestManager()
	p := &peerServer{manager: m}

	ack, err := p.ClientLeft(context.Background(), &ClientInfo{Nickname: "alice", ServerName: "irc2.test"})
	require.NoError(t, err)
	assert.True(t, ack.Success)
}

func TestPeerServerRelayMessageWithNoParamsAcksWithoutPanic(t *testing.T) {
	m := newTestManager()
	p := &peerServer{manager: m}

	ack, err := p.RelayMessage(context.Background(), &MessageRequest{Command: "PRIVMSG"})
	require.NoError(t, err)
	assert.True(t, ack.Success)
}

func TestPeerServerRelayMessageToUnknownNickIsDroppedSilently(t *testing.T) {
	m := newTestManager()
	p := &peerServer{manager: m}

	ack, err := p.RelayMessage(context.Background(), &MessageRequest{
		SenderServer: "irc2.test",
		OriginNick:   "bob",
		OriginUser:   "bob",
		OriginHost:   "irc2.test",
		Command:      "PRIVMSG",
		Params:       []string{"nosuchnick", "hello there"},
	})
	require.NoError(t, err)
	assert.True(t, ack.Success)
}

func TestPeerServerPublishBanAppliesToPropagatedIndexAndStats(t *testing.T) {
	m := newTestManager()
	p := &peerServer{manager: m}

	now := time.Unix(10000, 0)
	msg := &BanWireMessage{
		SenderServer: "irc2.test",
		Kind:         int(ircd.ConfKill),
		User:         "*",
		Host:         "bad.example.com",
		Created:      now,
		Hold:         now.Add(time.Hour),
		Lifetime:     now.Add(24 * time.Hour),
		Reason:       "spamming",
		Oper:         "oper1",
	}

	ack, err := p.PublishBan(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, ack.Success)

	rec, ok := m.server.PropBans.Lookup(ircd.BanKey{Kind: ircd.ConfKill, User: "*", Host: "bad.example.com"})
	require.True(t, ok)
	assert.Equal(t, "spamming", rec.Reason)

	assert.Equal(t, int64(1), m.server.Stats.Snapshot().PropagatedBans)
}

func TestPeerServerSyncStateAcksSuccess(t *testing.T) {
	m := newTestManager()
	p := &peerServer{manager: m}

	resp, err := p.SyncState(context.Background(), &SyncRequest{SenderServer: "irc2.test"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestBanWireFromConfConvertsFields(t *testing.T) {
	rec := &ircd.Conf{
		Kind:     ircd.ConfKill,
		UserMask: "*",
		HostMask: "bad.example.com",
		Reason:   "spamming",
	}

	msg := banWireFromConf(rec, "irc.test", "oper1", "*")
	assert.Equal(t, "irc.test", msg.SenderServer)
	assert.Equal(t, int(ircd.ConfKill), msg.Kind)
	assert.Equal(t, "*", msg.User)
	assert.Equal(t, "bad.example.com", msg.Host)
	assert.Equal(t, "oper1", msg.Oper)
	assert.Equal(t, "*", msg.TargetServer)
}

func TestClientInfoConvertsFromClient(t *testing.T) {
	c := &ircd.Client{Nick: "alice", User: "alice", Host: "example.com", Real: "Alice Example"}
	c.UID = "00TAAAAAA"
	info := clientInfo(c, "irc.test")
	assert.Equal(t, "alice", info.Nickname)
	assert.Equal(t, "irc.test", info.ServerName)
	assert.Equal(t, "00TAAAAAA", info.UID)
}
