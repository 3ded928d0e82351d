// Package peering implements the mesh transport for the
// propagated-ban/ENCAP coordinator: server-to-server client
// introduction, message relay, and BAN propagation over grpc, using a
// hand-written service (service.go) and a JSON grpc.Codec (codec.go)
// in place of a generated proto package.
package peering

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/solanum-irc/solanum/ircd"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Manager owns the local grpc peer server, the set of outbound peer
// connections, and the hook wiring that turns local client/ban events
// into mesh fan-out, subscribing directly against ircd.HookBus rather
// than a separate per-package hook registry.
type Manager struct {
	server *ircd.Server

	mu         sync.RWMutex
	peers      map[string]*grpc.ClientConn
	peerNames  map[string]string // dial address -> ServerName from the peer's SyncResponse
	peerServer *grpc.Server
}

// NewManager constructs a peering manager bound to server. Call
// Register to subscribe to hooks and StartGRPCServer to accept inbound
// peer links.
func NewManager(server *ircd.Server) *Manager {
	return &Manager{
		server:    server,
		peers:     make(map[string]*grpc.ClientConn),
		peerNames: make(map[string]string),
	}
}

// AddPeer records an outbound connection under address, replacing any
// prior entry.
func (m *Manager) AddPeer(address string, conn *grpc.ClientConn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[address] = conn
}

// ForEachPeer invokes fn for every currently-connected peer.
func (m *Manager) ForEachPeer(fn func(address string, conn *grpc.ClientConn)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for addr, conn := range m.peers {
		fn(addr, conn)
	}
}

// setPeerName records the server name a peer reported for address,
// learned from that peer's SyncResponse.
func (m *Manager) setPeerName(address, serverName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peerNames[address] = serverName
}

// peerMatchesTarget reports whether the peer at address is the named
// target server. A peer whose name hasn't been learned yet (sync still
// pending) never matches, so a targeted ban doesn't leak to it.
func (m *Manager) peerMatchesTarget(address, target string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peerNames[address] == target
}

// StartGRPCServer starts accepting inbound peer links on bindAddr.
func (m *Manager) StartGRPCServer(bindAddr string) error {
	m.peerServer = grpc.NewServer()
	m.peerServer.RegisterService(&serviceDesc, &peerServer{manager: m})

	lis, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return fmt.Errorf("peering: listen %s: %w", bindAddr, err)
	}

	go func() {
		if err := m.peerServer.Serve(lis); err != nil {
			m.server.Logger.Printf("peering: grpc serve exited: %v", err)
		}
	}()

	m.server.Logger.Printf("peering: grpc peer server listening on %s", bindAddr)
	return nil
}

// StopGRPCServer stops accepting inbound peer links.
func (m *Manager) StopGRPCServer() {
	if m.peerServer != nil {
		m.peerServer.GracefulStop()
	}
}

// ConnectToPeers dials every address, storing the resulting
// connection and kicking off an initial state sync.
func (m *Manager) ConnectToPeers(addresses []string) {
	for _, address := range addresses {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, err := grpc.DialContext(ctx, address,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithBlock(),
		)
		cancel()
		if err != nil {
			m.server.Logger.Printf("peering: failed to connect to peer %s: %v", address, err)
			continue
		}
		m.AddPeer(address, conn)
		m.server.Logger.Printf("peering: connected to peer %s", address)
		go m.syncWithPeer(address, conn)
	}
}

// syncWithPeer sends a newly-connected peer this server's name and
// records the server name the peer reports back; no channel, client or
// ban state is exchanged.
func (m *Manager) syncWithPeer(address string, conn *grpc.ClientConn) {
	client := newIRCPeerClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := client.SyncState(ctx, &SyncRequest{SenderServer: m.server.Name})
	if err != nil {
		m.server.Logger.Printf("peering: sync with %s failed: %v", address, err)
		return
	}
	if !resp.Success {
		m.server.Logger.Printf("peering: peer %s rejected sync: %s", address, resp.ErrorMessage)
		return
	}
	if resp.ServerName != "" {
		m.setPeerName(address, resp.ServerName)
	}
}

// Register subscribes to the hook points that drive mesh fan-out: new
// local registration (announce), local quit (notify), and outbound
// ban installation.
func (m *Manager) Register() {
	m.server.Hooks.AddIntroduceClient(ircd.PriorityMonitor, func(c *ircd.Client) {
		m.notifyPeersClientJoined(c)
	})
	m.server.Hooks.AddClientExit(ircd.PriorityMonitor, func(d *ircd.ClientExitData) {
		m.notifyPeersClientLeft(d.Client)
	})
	m.server.Hooks.AddBanInstalled(ircd.PriorityMonitor, func(d *ircd.BanInstalledData) {
		if d.Conf.Flags&ircd.FlagTemporary == 0 {
			// Permanent bans are local-only records (no finite TTL to
			// carry as a BAN message's lifetime) and never propagate.
			return
		}
		m.PublishBan(d.Conf, d.OperName, d.Target)
	})
}

func clientInfo(c *ircd.Client, serverName string) *ClientInfo {
	return &ClientInfo{
		UID:        c.UID,
		SID:        c.SID,
		Nickname:   c.Nick,
		Username:   c.User,
		Hostname:   c.Host,
		Realname:   c.Real,
		IsOperator: c.Modes.Operator,
		ServerName: serverName,
	}
}

func (m *Manager) notifyPeersClientJoined(c *ircd.Client) {
	req := clientInfo(c, m.server.Name)
	m.ForEachPeer(func(address string, conn *grpc.ClientConn) {
		client := newIRCPeerClient(conn)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := client.ClientJoined(ctx, req); err != nil {
			m.server.Logger.Printf("peering: notify %s of join failed: %v", address, err)
		}
	})
}

func (m *Manager) notifyPeersClientLeft(c *ircd.Client) {
	req := clientInfo(c, m.server.Name)
	m.ForEachPeer(func(address string, conn *grpc.ClientConn) {
		client := newIRCPeerClient(conn)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := client.ClientLeft(ctx, req); err != nil {
			m.server.Logger.Printf("peering: notify %s of leave failed: %v", address, err)
		}
	})
}

// RelayMessage fans a command line out to every connected peer.
func (m *Manager) RelayMessage(sender *ircd.Client, command string, params ...string) {
	req := &MessageRequest{
		SenderServer: m.server.Name,
		OriginUID:    sender.UID,
		OriginNick:   sender.Nick,
		OriginUser:   sender.User,
		OriginHost:   sender.Host,
		Command:      command,
		Params:       params,
	}
	m.ForEachPeer(func(address string, conn *grpc.ClientConn) {
		client := newIRCPeerClient(conn)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := client.RelayMessage(ctx, req); err != nil {
			m.server.Logger.Printf("peering: relay to %s failed: %v", address, err)
		}
	})
}

// PublishBan propagates an access-control change to connected peers as
// a network BAN: every peer for a network-wide ban (target == "*"), or
// only the peer matching target for a ban command's [ON target-server]
// clause.
func (m *Manager) PublishBan(rec *ircd.Conf, operName, target string) {
	msg := banWireFromConf(rec, m.server.Name, operName, target)
	m.ForEachPeer(func(address string, conn *grpc.ClientConn) {
		if target != "*" && !m.peerMatchesTarget(address, target) {
			return
		}
		client := newIRCPeerClient(conn)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := client.PublishBan(ctx, msg); err != nil {
			m.server.Logger.Printf("peering: publish ban to %s failed: %v", address, err)
		}
	})
}

func banWireFromConf(rec *ircd.Conf, serverName, operName, target string) *BanWireMessage {
	user, host := rec.UserMask, rec.HostMask
	return &BanWireMessage{
		SenderServer: serverName,
		Kind:         int(rec.Kind),
		User:         user,
		Host:         host,
		Created:      rec.Created,
		Hold:         rec.Hold,
		Lifetime:     rec.Lifetime,
		Reason:       rec.Reason,
		OperReason:   rec.OperReason,
		Oper:         operName,
		TargetServer: target,
	}
}

// peerServer implements IRCPeerServer against a Manager.
type peerServer struct {
	manager *Manager
}

func (p *peerServer) ClientJoined(ctx context.Context, in *ClientInfo) (*Ack, error) {
	p.manager.server.Logger.Printf("peering: %s introduced %s!%s@%s", in.ServerName, in.Nickname, in.Username, in.Hostname)
	return &Ack{Success: true}, nil
}

func (p *peerServer) ClientLeft(ctx context.Context, in *ClientInfo) (*Ack, error) {
	p.manager.server.Logger.Printf("peering: %s's client %s left", in.ServerName, in.Nickname)
	return &Ack{Success: true}, nil
}

// RelayMessage delivers an inbound relayed command to its local
// target: a joined channel's members, or a single local client by
// nick. Unknown targets are dropped silently, matching how a solanum
// mesh participant ignores a relay for a nick/channel it has no local
// record of.
func (p *peerServer) RelayMessage(ctx context.Context, in *MessageRequest) (*Ack, error) {
	if len(in.Params) == 0 {
		return &Ack{Success: true}, nil
	}
	prefix := in.OriginNick + "!" + in.OriginUser + "@" + in.OriginHost
	target := in.Params[0]

	msg := &ircd.MsgBuf{Prefix: prefix, Command: in.Command, Params: in.Params}
	if len(in.Params) > 1 {
		msg.Params = in.Params[:len(in.Params)-1]
		msg.Trailing = in.Params[len(in.Params)-1]
		msg.HasTrail = true
	}

	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		if ch, ok := p.manager.server.LookupChannel(target); ok {
			for member := range ch.Members() {
				member.Send(msg)
			}
		}
		return &Ack{Success: true}, nil
	}

	if c, ok := p.manager.server.Lookup(target); ok {
		c.Send(msg)
	}
	return &Ack{Success: true}, nil
}

// PublishBan applies an inbound network BAN to the local propagated-ban
// index through PropagatedBanIndex.Apply's monotonic-merge rule.
func (p *peerServer) PublishBan(ctx context.Context, in *BanWireMessage) (*Ack, error) {
	key := ircd.BanKey{Kind: ircd.ConfKind(in.Kind), User: in.User, Host: in.Host}
	p.manager.server.PropBans.Apply(ircd.BanMessage{
		Key:        key,
		Created:    in.Created,
		Hold:       in.Hold,
		Lifetime:   in.Lifetime,
		Reason:     in.Reason,
		OperReason: in.OperReason,
		Oper:       in.Oper,
	})
	p.manager.server.Stats.IncrPropagatedBans()
	p.manager.server.Logger.Printf("peering: applied network ban from %s: kind=%d %s@%s", in.SenderServer, in.Kind, in.User, in.Host)
	return &Ack{Success: true}, nil
}

// SyncState answers an inbound initial-link sync request with success
// and this server's name only; it returns no ban, channel or client
// state and ignores any carried in the request.
func (p *peerServer) SyncState(ctx context.Context, in *SyncRequest) (*SyncResponse, error) {
	p.manager.server.Logger.Printf("peering: sync request from %s", in.SenderServer)
	return &SyncResponse{Success: true, ServerName: p.manager.server.Name}, nil
}
