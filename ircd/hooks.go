package ircd

import "sort"

// Priority orders callbacks at the same hook point. Lower values run
// first; Monitor always runs last and, by convention, must not mutate
// the approval decision or attach tags — enforced by tests, not the
// type system.
type Priority int

const (
	PriorityLowest Priority = iota - 2
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
	PriorityMonitor
)

// HookName enumerates the sealed set of hook points. Keeping this a
// closed set, rather than string-named, interface{}-payload hooks,
// fixes each kind's payload type at compile time.
type HookName string

const (
	HookNewLocalUser    HookName = "new_local_user"
	HookIntroduceClient HookName = "introduce_client"
	HookUmodeChanged    HookName = "umode_changed"
	HookCapChange       HookName = "cap_change"
	HookCanJoin         HookName = "can_join"
	HookPrivmsgChannel  HookName = "privmsg_channel"
	HookPrivmsgUser     HookName = "privmsg_user"
	HookCanSend         HookName = "can_send"
	HookOutboundMsgBuf  HookName = "outbound_msgbuf"
	HookMessageTag      HookName = "message_tag"
	HookConfReadStart   HookName = "conf_read_start"
	HookConfReadEnd     HookName = "conf_read_end"
	HookDoingStats      HookName = "doing_stats"
	HookAccountChange   HookName = "account_change"
	HookClientExit      HookName = "client_exit"
	HookBanInstalled    HookName = "ban_installed"
	HookBanRemoved      HookName = "ban_removed"
)

// CanSendResult is the can_send hook's verdict.
type CanSendResult int

const (
	CanSendOK CanSendResult = iota
	CanSendNo
)

// UmodeChangedData is the payload for umode_changed.
type UmodeChangedData struct {
	Client *Client
	Old    UserMode
}

// CanJoinData is the payload for can_join; a non-zero Approved denies
// the join and Numeric/Reason are sent to the requester.
type CanJoinData struct {
	Client   *Client
	Channel  *Channel
	Approved int
	Numeric  int
	Reason   string
}

// PrivmsgData is the shared payload shape for privmsg_channel and
// privmsg_user.
type PrivmsgData struct {
	Sender   *Client
	Channel  *Channel // nil for privmsg_user
	Target   *Client  // nil for privmsg_channel
	Text     string
	MsgType  string // PRIVMSG or NOTICE
	MsgBuf   *MsgBuf
	Approved int
}

// CanSendData is the payload for can_send.
type CanSendData struct {
	Client  *Client
	Channel *Channel
	Silent  bool
	Result  CanSendResult
}

// OutboundMsgBufData is the payload for outbound_msgbuf; callbacks
// decorate MsgBuf via AppendTag.
type OutboundMsgBufData struct {
	Client *Client
	MsgBuf *MsgBuf
}

// MessageTagData is the payload for message_tag.
type MessageTagData struct {
	Client   *Client
	Key      string
	Value    string
	Approved bool
	CapMask  CapMask
}

// StatsData is the payload for doing_stats.
type StatsData struct {
	Client *Client
	Letter byte
}

// ClientExitData is the payload for client_exit, fired once a client
// has been marked CLOSING; Reason is the text sent in the QUIT/ERROR
// line.
type ClientExitData struct {
	Client *Client
	Reason string
}

// BanInstalledData is the payload for ban_installed, fired once a
// K/D/X-line or resv has been added to the local access-control
// indexes (ircd/peering subscribes to this to publish the ban onto the
// mesh). Target is "*" for a network-wide ban or the server name from
// a ban command's [ON target-server] clause.
type BanInstalledData struct {
	Conf     *Conf
	OperName string
	Target   string
}

// BanRemovedData is the payload for ban_removed, fired once an UN*
// command has removed a record from the local access-control index
// (ircd/bandb subscribes to this to delete the persisted row).
type BanRemovedData struct {
	Kind     ConfKind
	UserMask string
	HostMask string
}

// hookCallback pairs a priority with an opaque invoker; the bus stores
// one slice of these per HookName, with each HookBus method family
// (AddXxx/FireXxx) providing the per-call-site type safety a generic
// registry would give per-instance.
type hookCallback struct {
	priority Priority
	fn       interface{}
}

// HookBus is the process-wide (or per-server-instance) hook registry:
// named hook points firing ordered, typed callbacks. One slice per
// sealed HookName, rather than one generic registry per payload type,
// lets a single bus instance hold every hook kind.
type HookBus struct {
	callbacks map[HookName][]hookCallback
}

// NewHookBus constructs an empty bus.
func NewHookBus() *HookBus {
	return &HookBus{callbacks: make(map[HookName][]hookCallback)}
}

func (b *HookBus) add(name HookName, prio Priority, fn interface{}) {
	b.callbacks[name] = append(b.callbacks[name], hookCallback{priority: prio, fn: fn})
	sort.SliceStable(b.callbacks[name], func(i, j int) bool {
		return b.callbacks[name][i].priority < b.callbacks[name][j].priority
	})
}

// AddCanJoin registers a can_join callback.
func (b *HookBus) AddCanJoin(prio Priority, fn func(*CanJoinData)) {
	b.add(HookCanJoin, prio, fn)
}

// FireCanJoin runs all can_join callbacks in priority order. Once
// Approved is non-zero, MONITOR callbacks are skipped; other later
// callbacks still run but should not downgrade it.
func (b *HookBus) FireCanJoin(d *CanJoinData) {
	for _, cb := range b.callbacks[HookCanJoin] {
		if cb.priority == PriorityMonitor && d.Approved != 0 {
			continue
		}
		cb.fn.(func(*CanJoinData))(d)
	}
}

// AddPrivmsgChannel registers a privmsg_channel callback.
func (b *HookBus) AddPrivmsgChannel(prio Priority, fn func(*PrivmsgData)) {
	b.add(HookPrivmsgChannel, prio, fn)
}

// FirePrivmsgChannel runs all privmsg_channel callbacks.
func (b *HookBus) FirePrivmsgChannel(d *PrivmsgData) {
	for _, cb := range b.callbacks[HookPrivmsgChannel] {
		cb.fn.(func(*PrivmsgData))(d)
	}
}

// AddPrivmsgUser registers a privmsg_user callback.
func (b *HookBus) AddPrivmsgUser(prio Priority, fn func(*PrivmsgData)) {
	b.add(HookPrivmsgUser, prio, fn)
}

// FirePrivmsgUser runs all privmsg_user callbacks.
func (b *HookBus) FirePrivmsgUser(d *PrivmsgData) {
	for _, cb := range b.callbacks[HookPrivmsgUser] {
		cb.fn.(func(*PrivmsgData))(d)
	}
}

// AddCanSend registers a can_send callback.
func (b *HookBus) AddCanSend(prio Priority, fn func(*CanSendData)) {
	b.add(HookCanSend, prio, fn)
}

// FireCanSend runs all can_send callbacks; CanSendNo blocks.
func (b *HookBus) FireCanSend(d *CanSendData) {
	for _, cb := range b.callbacks[HookCanSend] {
		cb.fn.(func(*CanSendData))(d)
	}
}

// AddOutboundMsgBuf registers an outbound_msgbuf decorator.
func (b *HookBus) AddOutboundMsgBuf(prio Priority, fn func(*OutboundMsgBufData)) {
	b.add(HookOutboundMsgBuf, prio, fn)
}

// FireOutboundMsgBuf runs all outbound_msgbuf callbacks.
func (b *HookBus) FireOutboundMsgBuf(d *OutboundMsgBufData) {
	for _, cb := range b.callbacks[HookOutboundMsgBuf] {
		cb.fn.(func(*OutboundMsgBufData))(d)
	}
}

// AddMessageTag registers a message_tag callback.
func (b *HookBus) AddMessageTag(prio Priority, fn func(*MessageTagData)) {
	b.add(HookMessageTag, prio, fn)
}

// FireMessageTag runs all message_tag callbacks.
func (b *HookBus) FireMessageTag(d *MessageTagData) {
	for _, cb := range b.callbacks[HookMessageTag] {
		cb.fn.(func(*MessageTagData))(d)
	}
}

// AddNewLocalUser registers a new_local_user callback.
func (b *HookBus) AddNewLocalUser(prio Priority, fn func(*Client)) {
	b.add(HookNewLocalUser, prio, fn)
}

// FireNewLocalUser runs all new_local_user callbacks; any may mark the
// client dead.
func (b *HookBus) FireNewLocalUser(c *Client) {
	for _, cb := range b.callbacks[HookNewLocalUser] {
		cb.fn.(func(*Client))(c)
	}
}

// AddIntroduceClient registers an introduce_client callback, fired once
// a newly-registered local client is ready to be announced to the rest
// of the mesh (EUID burst, peer notification).
func (b *HookBus) AddIntroduceClient(prio Priority, fn func(*Client)) {
	b.add(HookIntroduceClient, prio, fn)
}

// FireIntroduceClient runs all introduce_client callbacks.
func (b *HookBus) FireIntroduceClient(c *Client) {
	for _, cb := range b.callbacks[HookIntroduceClient] {
		cb.fn.(func(*Client))(c)
	}
}

// AddBanInstalled registers a ban_installed callback.
func (b *HookBus) AddBanInstalled(prio Priority, fn func(*BanInstalledData)) {
	b.add(HookBanInstalled, prio, fn)
}

// FireBanInstalled runs all ban_installed callbacks.
func (b *HookBus) FireBanInstalled(d *BanInstalledData) {
	for _, cb := range b.callbacks[HookBanInstalled] {
		cb.fn.(func(*BanInstalledData))(d)
	}
}

// AddBanRemoved registers a ban_removed callback.
func (b *HookBus) AddBanRemoved(prio Priority, fn func(*BanRemovedData)) {
	b.add(HookBanRemoved, prio, fn)
}

// FireBanRemoved runs all ban_removed callbacks.
func (b *HookBus) FireBanRemoved(d *BanRemovedData) {
	for _, cb := range b.callbacks[HookBanRemoved] {
		cb.fn.(func(*BanRemovedData))(d)
	}
}

// AddClientExit registers a client_exit callback.
func (b *HookBus) AddClientExit(prio Priority, fn func(*ClientExitData)) {
	b.add(HookClientExit, prio, fn)
}

// FireClientExit runs all client_exit callbacks.
func (b *HookBus) FireClientExit(d *ClientExitData) {
	for _, cb := range b.callbacks[HookClientExit] {
		cb.fn.(func(*ClientExitData))(d)
	}
}

// AddUmodeChanged registers an umode_changed callback.
func (b *HookBus) AddUmodeChanged(prio Priority, fn func(*UmodeChangedData)) {
	b.add(HookUmodeChanged, prio, fn)
}

// FireUmodeChanged runs all umode_changed callbacks.
func (b *HookBus) FireUmodeChanged(d *UmodeChangedData) {
	for _, cb := range b.callbacks[HookUmodeChanged] {
		cb.fn.(func(*UmodeChangedData))(d)
	}
}

// AddDoingStats registers a doing_stats callback.
func (b *HookBus) AddDoingStats(prio Priority, fn func(*StatsData)) {
	b.add(HookDoingStats, prio, fn)
}

// FireDoingStats runs all doing_stats callbacks.
func (b *HookBus) FireDoingStats(d *StatsData) {
	for _, cb := range b.callbacks[HookDoingStats] {
		cb.fn.(func(*StatsData))(d)
	}
}

// AddAccountChange registers an account_change observer.
func (b *HookBus) AddAccountChange(prio Priority, fn func(*Client)) {
	b.add(HookAccountChange, prio, fn)
}

// FireAccountChange runs all account_change callbacks.
func (b *HookBus) FireAccountChange(c *Client) {
	for _, cb := range b.callbacks[HookAccountChange] {
		cb.fn.(func(*Client))(c)
	}
}

// Count returns the number of callbacks registered at name, used by
// tests asserting MONITOR-priority placement.
func (b *HookBus) Count(name HookName) int {
	return len(b.callbacks[name])
}
