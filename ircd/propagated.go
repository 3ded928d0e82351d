package ircd

import (
	"sync"
	"time"
)

// BanKey identifies a propagated ban by (kind, user, host); user may
// be empty for host/IP-only bans (D-lines, X-lines).
type BanKey struct {
	Kind ConfKind
	User string
	Host string
}

// BanMessage is the shape of a network BAN: created/hold/lifetime are
// absolute instants; ircd/peering carries them as time.Time fields of
// its JSON BanWireMessage.
type BanMessage struct {
	Key        BanKey
	Created    time.Time
	Hold       time.Time
	Lifetime   time.Time
	Reason     string
	OperReason string
	Oper       string
}

// PropagatedBanIndex is the second index, keyed by (kind, user, host),
// holding every known propagated ban including ones also present in
// the AddressIndex. Apply replaces the stored record, then installs it
// into the address hash; it does not emit a BAN to peers.
type PropagatedBanIndex struct {
	mu      sync.Mutex
	records map[BanKey]*Conf
	address *AddressIndex
	now     func() time.Time
}

// NewPropagatedBanIndex constructs an index that installs live records
// into address as well.
func NewPropagatedBanIndex(address *AddressIndex, now func() time.Time) *PropagatedBanIndex {
	return &PropagatedBanIndex{records: make(map[BanKey]*Conf), address: address, now: now}
}

// Apply processes an inbound BAN message under a monotonic merge rule,
// returning the resulting (possibly merged) Conf.
func (p *PropagatedBanIndex) Apply(msg BanMessage) *Conf {
	p.mu.Lock()
	defer p.mu.Unlock()

	old, exists := p.records[msg.Key]

	next := &Conf{
		Kind:       msg.Key.Kind,
		UserMask:   msg.Key.User,
		HostMask:   msg.Key.Host,
		Reason:     msg.Reason,
		OperReason: msg.OperReason,
		Created:    msg.Created,
		Hold:       msg.Hold,
		Lifetime:   msg.Lifetime,
	}

	if exists {
		if next.Lifetime.Before(old.Lifetime) {
			next.Lifetime = old.Lifetime
		}
		if !next.Created.After(old.Created) {
			next.Created = old.Created.Add(time.Second)
		}
		if !next.Hold.After(next.Created) {
			next.Hold = next.Created.Add(time.Second)
		}
		if next.Lifetime.Before(next.Hold) {
			next.Lifetime = next.Hold
		}
		p.address.Remove(old)
	}

	p.records[msg.Key] = next
	if next.Hold.After(p.now()) {
		p.address.Insert(next)
	}
	return next
}

// Lookup returns the current record for key, if any (including
// tombstones past Hold but not yet past Lifetime).
func (p *PropagatedBanIndex) Lookup(key BanKey) (*Conf, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.records[key]
	return c, ok
}

// ExpireScan runs the 60-second propagated-index sweep: records whose
// Hold has passed are removed from the address hash
// (remaining as tombstones); records whose Lifetime has passed are
// removed entirely.
func (p *PropagatedBanIndex) ExpireScan() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for key, c := range p.records {
		if !c.Lifetime.After(now) {
			p.address.Remove(c)
			delete(p.records, key)
			continue
		}
		if !c.Hold.After(now) && !c.illegal() {
			p.address.Remove(c)
		}
	}
}
