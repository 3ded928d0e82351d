package ircd

import (
	"net"
	"strings"
	"sync"
	"time"
)

// ConfKind discriminates the access-control record types: client
// auth blocks, K/D-line bans, exemptions, gecos bans, and nick/channel
// reservations.
type ConfKind int

const (
	ConfClient ConfKind = iota
	ConfKill         // K-line
	ConfDLine        // D-line
	ConfExempt
	ConfXLine // gecos ban
	ConfResvNick
	ConfResvChannel
	ConfSecure
)

// ConfFlags are the per-record behavior bits an access-control record
// can carry.
type ConfFlags uint16

const (
	FlagEncryptedPassword ConfFlags = 1 << iota
	FlagNeedSSL
	FlagExemptLimits
	FlagSpoofIP
	FlagKlineSpoof
	FlagNoTilde
	FlagRedirect
	FlagTemporary
	FlagMyOper
	FlagIllegal // pending deletion; excluded from lookups, kept for refcounting
)

// MaskType distinguishes how HostMask is interpreted.
type MaskType int

const (
	MaskHost MaskType = iota
	MaskIPv4
	MaskIPv6
)

// Conf is one access-control record. A record with Lifetime > 0 is
// propagated; Lifetime == 0 and
// FlagTemporary set is local-temporary; otherwise it is a permanent
// local record.
type Conf struct {
	Kind ConfKind

	UserMask string
	HostMask string
	MaskType MaskType
	PrefixLen int // for IPv4/IPv6 masks
	AuthUser  string // required username for auth blocks, "" if unset

	Reason     string
	OperReason string
	ClassName  string
	Port       int
	Flags      ConfFlags

	Precedence int
	seq        int // insertion order, set by AddressIndex.Insert; tie-breaks equal Precedence

	Created  time.Time
	Hold     time.Time // expiry instant; zero means "never"
	Lifetime time.Time // propagated-ban tombstone instant; zero means "local"

	refcount int
	mu       sync.Mutex
}

// IsPropagated reports whether c carries network propagation metadata.
func (c *Conf) IsPropagated() bool {
	return !c.Lifetime.IsZero()
}

// IsLocalTemporary reports whether c is a local, non-propagated,
// TTL-bucketed record.
func (c *Conf) IsLocalTemporary() bool {
	return c.Lifetime.IsZero() && c.Flags&FlagTemporary != 0
}

// MarkIllegal flags c for removal; it remains addressable until its
// refcount drops to zero, since in-flight client references (att_conf
// pointers) may still hold it.
func (c *Conf) MarkIllegal() {
	c.mu.Lock()
	c.Flags |= FlagIllegal
	c.mu.Unlock()
}

func (c *Conf) illegal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Flags&FlagIllegal != 0
}

// Ref increments the reference count (a Client's att_conf pointer).
func (c *Conf) Ref() {
	c.mu.Lock()
	c.refcount++
	c.mu.Unlock()
}

// Unref decrements the reference count, returning true if it reached
// zero (the record may now be freed by the caller).
func (c *Conf) Unref() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refcount--
	return c.refcount <= 0
}

const addressHashBuckets = 4096

// AddressIndex is the hash-over-mask-head index: 4096 buckets, each
// holding the *Conf records whose host mask hashes there. Lookups scan
// every bucket that could plausibly match and resolve ties by
// precedence then insertion order.
type AddressIndex struct {
	mu      sync.RWMutex
	buckets [addressHashBuckets][]*Conf
	seq     int
}

// NewAddressIndex constructs an empty index.
func NewAddressIndex() *AddressIndex {
	return &AddressIndex{}
}

func hashMaskHead(s string) int {
	s = strings.ToLower(s)
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return int(h % addressHashBuckets)
}

// Insert adds c to the bucket for its host mask's head token (the
// portion before the first wildcard character, or the whole mask if
// literal).
func (idx *AddressIndex) Insert(c *Conf) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.seq++
	c.mu.Lock()
	c.refcount++ // index itself holds a weak/strong tie until removed
	c.seq = idx.seq
	c.mu.Unlock()
	b := hashMaskHead(maskHead(c.HostMask))
	idx.buckets[b] = append(idx.buckets[b], c)
}

func maskHead(mask string) string {
	if i := strings.IndexAny(mask, "*?"); i >= 0 {
		return mask[:i]
	}
	return mask
}

// Remove marks c ILLEGAL and removes it from its bucket. The Conf
// itself is not freed here; callers drop their reference separately.
func (idx *AddressIndex) Remove(c *Conf) {
	c.MarkIllegal()
	idx.mu.Lock()
	defer idx.mu.Unlock()
	b := hashMaskHead(maskHead(c.HostMask))
	bucket := idx.buckets[b]
	for i, rec := range bucket {
		if rec == c {
			idx.buckets[b] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
}

// FindAddressConf returns the matching record of highest precedence,
// tie-broken by earlier insertion, across every bucket that could
// plausibly match host, sockhost, or ip (address indexes are small
// enough in practice that a full bucket scan per kind is acceptable;
// the 4096-way split keeps any one bucket short).
func (idx *AddressIndex) FindAddressConf(host, sockhost, username, notildeuser string, ip net.IP, authUser string) *Conf {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var best *Conf
	for _, bucket := range idx.buckets {
		for _, c := range bucket {
			if c.illegal() {
				continue
			}
			if !matchesUser(c, username, notildeuser) {
				continue
			}
			if !matchesHost(c, host, sockhost, ip) {
				continue
			}
			if c.AuthUser != "" && c.AuthUser != authUser {
				continue
			}
			if higherPrecedence(c, best) {
				best = c
			}
		}
	}
	return best
}

// FindDLine implements find_dline: DLINE records restricted to ip,
// with an overriding EXEMPT returned instead when present.
func (idx *AddressIndex) FindDLine(ip net.IP) *Conf {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var dline, exempt *Conf
	for _, bucket := range idx.buckets {
		for _, c := range bucket {
			if c.illegal() || !matchesHost(c, "", "", ip) {
				continue
			}
			switch c.Kind {
			case ConfDLine:
				if higherPrecedence(c, dline) {
					dline = c
				}
			case ConfExempt:
				if higherPrecedence(c, exempt) {
					exempt = c
				}
			}
		}
	}
	if exempt != nil {
		return exempt
	}
	return dline
}

// FindKLine returns the highest-precedence KILL record matching
// host/ip/username, with KILL superseding CLIENT at equal precedence
// for ban checks.
func (idx *AddressIndex) FindKLine(host, sockhost, username string, ip net.IP) *Conf {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var best *Conf
	for _, bucket := range idx.buckets {
		for _, c := range bucket {
			if c.illegal() || c.Kind != ConfKill {
				continue
			}
			if !matchesUser(c, username, strings.TrimPrefix(username, "~")) || !matchesHost(c, host, sockhost, ip) {
				continue
			}
			if higherPrecedence(c, best) {
				best = c
			}
		}
	}
	return best
}

// higherPrecedence reports whether candidate should replace current as
// the best match: strictly higher Precedence wins outright; on a tie,
// the earlier-inserted record wins.
func higherPrecedence(candidate, current *Conf) bool {
	if current == nil {
		return true
	}
	if candidate.Precedence != current.Precedence {
		return candidate.Precedence > current.Precedence
	}
	return candidate.seq < current.seq
}

// matchesUser tests c's user-mask against username, or against
// notildeuser (the username with any failed-ident "~" prefix
// stripped) when c has NO-TILDE set.
func matchesUser(c *Conf, username, notildeuser string) bool {
	if c.UserMask == "" || c.UserMask == "*" {
		return true
	}
	if c.Flags&FlagNoTilde != 0 {
		return globMatch(c.UserMask, notildeuser)
	}
	return globMatch(c.UserMask, username)
}

func matchesHost(c *Conf, host, sockhost string, ip net.IP) bool {
	switch c.MaskType {
	case MaskIPv4, MaskIPv6:
		if ip == nil {
			return false
		}
		_, network, err := net.ParseCIDR(c.HostMask)
		if err != nil {
			parsed := net.ParseIP(c.HostMask)
			return parsed != nil && parsed.Equal(ip)
		}
		return network.Contains(ip)
	default:
		if c.HostMask == "" || c.HostMask == "*" {
			return true
		}
		return globMatch(c.HostMask, host) || globMatch(c.HostMask, sockhost)
	}
}

// globMatch implements `*`/`?` wildcard matching for host- and
// user-masks.
func globMatch(pattern, s string) bool {
	pattern = strings.ToLower(pattern)
	s = strings.ToLower(s)
	return globMatchRunes([]rune(pattern), []rune(s))
}

func globMatchRunes(pattern, s []rune) bool {
	if len(pattern) == 0 {
		return len(s) == 0
	}
	if pattern[0] == '*' {
		for i := 0; i <= len(s); i++ {
			if globMatchRunes(pattern[1:], s[i:]) {
				return true
			}
		}
		return false
	}
	if len(s) == 0 {
		return false
	}
	if pattern[0] == '?' || pattern[0] == s[0] {
		return globMatchRunes(pattern[1:], s[1:])
	}
	return false
}
