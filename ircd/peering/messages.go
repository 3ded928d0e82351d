package peering

import "time"

// ClientInfo announces a locally-registered client to a peer: a plain
// struct standing in for a TS6 EUID burst line, carrying UID/SID
// alongside the usual nick/user/host/gecos fields so the mesh can
// track TS6 identifiers end to end.
type ClientInfo struct {
	UID        string
	SID        string
	Nickname   string
	Username   string
	Hostname   string
	Realname   string
	IsOperator bool
	ServerName string
}

// MessageRequest relays a command line to a peer for fan-out delivery.
type MessageRequest struct {
	SenderServer string
	OriginUID    string
	OriginNick   string
	OriginUser   string
	OriginHost   string
	Command      string
	Params       []string
}

// BanWireMessage is the network BAN/ENCAP payload: Created/Hold/
// Lifetime travel as absolute instants (an open design question
// resolved in DESIGN.md in favor of absolute, matching how
// ircd.PropagatedBanIndex.Apply already interprets them locally).
type BanWireMessage struct {
	SenderServer string
	Kind         int // mirrors ircd.ConfKind
	User         string
	Host         string
	Created      time.Time
	Hold         time.Time
	Lifetime     time.Time
	Reason       string
	OperReason   string
	Oper         string
	TargetServer string // "*" for network-wide, else the ON-target from the ban command
}

// ChannelInfo and ClientDetail are the bulk records carried in a
// SyncRequest for initial state exchange on link.
type ChannelInfo struct {
	Name    string
	Topic   string
	Members []string // nicknames
}

type ClientDetail struct {
	UID      string
	Nickname string
	Username string
	Hostname string
	Realname string
	Account  string
}

// SyncRequest opens a new peer link. syncWithPeer fills only
// SenderServer; Channels, Clients and Bans are left empty.
type SyncRequest struct {
	SenderServer string
	Channels     []ChannelInfo
	Clients      []ClientDetail
	Bans         []BanWireMessage
}

// SyncResponse acknowledges a SyncRequest. ServerName identifies the
// responding peer so the dialing side can resolve a ban command's
// [ON target-server] clause to a specific outbound connection.
type SyncResponse struct {
	Success      bool
	ErrorMessage string
	ServerName   string
}

// Ack is the common fire-and-forget acknowledgement for
// ClientJoined/ClientLeft/RelayMessage/PublishBan.
type Ack struct {
	Success bool
}
