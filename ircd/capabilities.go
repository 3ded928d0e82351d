package ircd

import "sync"

// CapMask is a bitmask slot assigned to a registered capability. Both
// the server-capability and client-capability registries hand these
// out starting at 1 and doubling, so membership tests and
// intersections are plain bitwise ops instead of map lookups.
type CapMask uint64

// CapDescriptor describes one negotiable capability in either registry.
type CapDescriptor struct {
	Name    string
	Mask    CapMask
	Sticky  bool // cannot be disabled once enabled (REQ -name rejected)
	// Visible gates whether the capability is advertised in CAP LS to
	// this client; nil means always visible.
	Visible func(c *Client) bool
	// Value returns the optional "=value" suffix shown in CAP LS/ACK;
	// nil or "" means the bare name is advertised.
	Value func(c *Client) string
}

// CapRegistry holds one of the two disjoint capability namespaces:
// server-to-server capabilities or client capabilities.
type CapRegistry struct {
	mu      sync.RWMutex
	byName  map[string]*CapDescriptor
	next    CapMask
}

// NewCapRegistry constructs an empty registry.
func NewCapRegistry() *CapRegistry {
	return &CapRegistry{byName: make(map[string]*CapDescriptor), next: 1}
}

// Register assigns the next bitmask slot to name and stores desc,
// returning the mask. Registering the same name twice returns the
// existing mask and overwrites the descriptor body (re-registration on
// module reload, matching conf_read_start/conf_read_end semantics).
func (r *CapRegistry) Register(name string, desc CapDescriptor) CapMask {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		mask := existing.Mask
		desc.Mask = mask
		desc.Name = name
		r.byName[name] = &desc
		return mask
	}

	mask := r.next
	r.next <<= 1
	desc.Mask = mask
	desc.Name = name
	r.byName[name] = &desc
	return mask
}

// Lookup returns the descriptor for name, if registered.
func (r *CapRegistry) Lookup(name string) (*CapDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// MaskFor returns the bitmask for name, or 0 if unregistered.
func (r *CapRegistry) MaskFor(name string) CapMask {
	if d, ok := r.Lookup(name); ok {
		return d.Mask
	}
	return 0
}

// Advertised returns the capabilities visible to c, in registration
// order stabilized by mask value.
func (r *CapRegistry) Advertised(c *Client) []*CapDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*CapDescriptor, 0, len(r.byName))
	for _, d := range r.byName {
		if d.Visible == nil || d.Visible(c) {
			out = append(out, d)
		}
	}
	sortDescriptorsByMask(out)
	return out
}

func sortDescriptorsByMask(ds []*CapDescriptor) {
	for i := 1; i < len(ds); i++ {
		for j := i; j > 0 && ds[j-1].Mask > ds[j].Mask; j-- {
			ds[j-1], ds[j] = ds[j], ds[j-1]
		}
	}
}

// well-known client capability names.
const (
	CapMessageTags   = "message-tags"
	CapServerTime    = "server-time"
	CapMultiPrefix   = "multi-prefix"
	CapAccountNotify = "account-notify"
	CapAccountTag    = "account-tag"
	CapEchoMessage   = "echo-message"
	CapExtendedJoin  = "extended-join"
	CapAwayNotify    = "away-notify"
	CapInviteNotify  = "invite-notify"
	CapCapNotify     = "cap-notify"
	CapBatch         = "batch"
	CapUserhostNames = "userhost-in-names"
	CapSolanumOper   = "solanum.chat/oper"
	CapOperAuspex    = "?oper_auspex"
	CapOperNormal    = "?oper_normal"
	CapRealhost      = "solanum.chat/realhost"
)

// well-known server-to-server capability names (TS6 mesh).
const (
	ScapTS6   = "TS6"
	ScapEUID  = "EUID"
	ScapBAN   = "BAN"
	ScapENCAP = "ENCAP"
	ScapKLN   = "KLN"
)

// RegisterStandardClientCaps installs the baseline client capability
// set used throughout the core's tests and default config.
func RegisterStandardClientCaps(r *CapRegistry) {
	r.Register(CapMessageTags, CapDescriptor{})
	r.Register(CapServerTime, CapDescriptor{
		Value: func(c *Client) string { return "" },
	})
	r.Register(CapMultiPrefix, CapDescriptor{})
	r.Register(CapAccountNotify, CapDescriptor{})
	r.Register(CapAccountTag, CapDescriptor{})
	r.Register(CapEchoMessage, CapDescriptor{})
	r.Register(CapExtendedJoin, CapDescriptor{})
	r.Register(CapAwayNotify, CapDescriptor{})
	r.Register(CapInviteNotify, CapDescriptor{})
	r.Register(CapCapNotify, CapDescriptor{Sticky: true})
	r.Register(CapBatch, CapDescriptor{})
	r.Register(CapUserhostNames, CapDescriptor{})

	// solanum.chat/oper: oper badge, value only shown to opers viewing
	// another oper's name.
	r.Register(CapSolanumOper, CapDescriptor{
		Visible: func(c *Client) bool { return true },
	})
	r.Register(CapOperAuspex, CapDescriptor{
		Visible: func(c *Client) bool { return c.Modes.Operator },
	})
	r.Register(CapOperNormal, CapDescriptor{
		Visible: func(c *Client) bool { return !c.Modes.Operator },
	})
	r.Register(CapRealhost, CapDescriptor{
		Visible: func(c *Client) bool { return c.Modes.Operator },
	})
}

// RegisterStandardServerCaps installs the baseline server-to-server
// capability set for the mesh.
func RegisterStandardServerCaps(r *CapRegistry) {
	r.Register(ScapTS6, CapDescriptor{Sticky: true})
	r.Register(ScapEUID, CapDescriptor{})
	r.Register(ScapBAN, CapDescriptor{})
	r.Register(ScapENCAP, CapDescriptor{})
	r.Register(ScapKLN, CapDescriptor{})
}
