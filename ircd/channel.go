package ircd

import "sync"

// ChannelModes are the subset of channel modes the can_join/can_send
// access hooks consult; full channel semantics (topic, ban lists,
// limits) are out of scope and are represented here only to the
// extent those hooks need.
type ChannelModes struct {
	RegisteredOnly bool // +R: only registered (logged-in) users may join
	SSLOnly        bool // +S: only TLS-connected users may join
	NoCTCP         bool // +C: CTCP blocked in privmsg_channel
	OpModerated    bool // +z: can_send silently redirects to ops for unvoiced users
}

// Channel is the minimal membership/mode sink the connection-and-access
// core consults via can_join/can_send/privmsg_channel; it exists only
// to carry what those hooks need, not full channel semantics.
type Channel struct {
	mu sync.RWMutex

	Name  string
	Modes ChannelModes

	members map[*Client]*Membership

	AllowedDuringQuarantine bool // present on the quarantine allowlist
}

// Membership records one client's per-channel status.
type Membership struct {
	Op     bool
	Voice  bool
	Joined bool
}

// NewChannel constructs an empty channel named name.
func NewChannel(name string) *Channel {
	return &Channel{Name: name, members: make(map[*Client]*Membership)}
}

// Members returns the current member set; safe for concurrent use, the
// returned map is a snapshot copy.
func (ch *Channel) Members() map[*Client]*Membership {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	out := make(map[*Client]*Membership, len(ch.members))
	for c, m := range ch.members {
		out[c] = &Membership{Op: m.Op, Voice: m.Voice, Joined: m.Joined}
	}
	return out
}

// Has reports whether c is currently a member.
func (ch *Channel) Has(c *Client) bool {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	_, ok := ch.members[c]
	return ok
}

// Join adds c as an unprivileged member. Callers are expected to have
// already run the can_join hook.
func (ch *Channel) Join(c *Client) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.members[c] = &Membership{Joined: true}
}

// Part removes c from the membership list.
func (ch *Channel) Part(c *Client) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	delete(ch.members, c)
}

// MemberCount returns the number of current members.
func (ch *Channel) MemberCount() int {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return len(ch.members)
}

// IsOp reports whether c holds channel-operator status.
func (ch *Channel) IsOp(c *Client) bool {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	m, ok := ch.members[c]
	return ok && m.Op
}
