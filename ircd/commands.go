package ircd

import (
	"sync"
	"time"
)

// CommandFlags mark per-command dispatch properties.
type CommandFlags int

const (
	FlagNone        CommandFlags = 0
	FlagRateLimited CommandFlags = 1 << 0
)

// CommandSpec is one dispatch-table entry: per-state handlers, a
// minimum parameter count, and dispatch flags.
type CommandSpec struct {
	Name       string
	MinParams  int
	Flags      CommandFlags
	Unregistered HandlerFunc // nil means "not allowed pre-registration"
	Client       HandlerFunc
	Oper         HandlerFunc // falls back to Client if nil

	count int64
	bytes int64
}

// HandlerFunc processes one parsed command for a given client.
type HandlerFunc func(s *Server, c *Client, msg *MsgBuf)

// Dispatcher is the command dispatch table.
type Dispatcher struct {
	mu       sync.Mutex
	commands map[string]*CommandSpec
}

// NewDispatcher constructs an empty table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{commands: make(map[string]*CommandSpec)}
}

// Register adds or replaces a command spec.
func (d *Dispatcher) Register(spec *CommandSpec) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands[spec.Name] = spec
}

// Lookup returns the spec for name, if registered.
func (d *Dispatcher) Lookup(name string) (*CommandSpec, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	spec, ok := d.commands[name]
	return spec, ok
}

// Dispatch routes msg to the handler matching c's current state,
// enforcing minimum parameter counts, rate limiting, and stats
// accounting. Unknown commands and state/handler mismatches reply with
// the matching numeric.
func (s *Server) Dispatch(c *Client, msg *MsgBuf) {
	spec, ok := s.Commands.Lookup(msg.Command)
	if !ok {
		c.SendNumeric(ErrUnknownCommand, msg.Command, "unknown command")
		return
	}

	spec.count++
	spec.bytes += int64(len(msg.Command))

	if msg.ParamCount() < spec.MinParams {
		c.SendNumeric(ErrNeedMoreParams, msg.Command, "not enough parameters")
		return
	}

	var handler HandlerFunc
	switch c.CurrentState() {
	case StateUnknown, StateRegistering:
		handler = spec.Unregistered
	case StateClient:
		if c.IsOper() && spec.Oper != nil {
			handler = spec.Oper
		} else {
			handler = spec.Client
		}
	case StateServer:
		handler = spec.Client // server-state handlers are registered the same way by peering.go
	default:
		handler = nil
	}

	if handler == nil {
		c.SendNumeric(ErrNotRegistered, msg.Command, "you have not registered")
		return
	}

	if spec.Flags&FlagRateLimited != 0 && !c.server.rateLimit(c, 1) {
		return
	}

	handler(s, c, msg)
}

// rateLimitState is a per-client token bucket for expensive commands
// (WHOIS, LIST, MONITOR).
type rateLimitState struct {
	mu      sync.Mutex
	tokens  float64
	last    time.Time
	now     func() time.Time
	maxTok  float64
}

func newRateLimitState(now func() time.Time, maxTokens float64) *rateLimitState {
	return &rateLimitState{tokens: maxTokens, last: now(), now: now, maxTok: maxTokens}
}

func (r *rateLimitState) consume(cost float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.now()
	elapsed := t.Sub(r.last).Seconds()
	r.last = t
	r.tokens += elapsed // one token per second refill
	if r.tokens > r.maxTok {
		r.tokens = r.maxTok
	}
	if r.tokens < cost {
		return false
	}
	r.tokens -= cost
	return true
}

// rateLimit consumes cost tokens from c's bucket, lazily creating it.
func (s *Server) rateLimit(c *Client, cost float64) bool {
	c.mu.Lock()
	if c.rateLimiter == nil {
		c.rateLimiter = newRateLimitState(s.now, s.Config.MaxRatelimitTokens)
	}
	rl := c.rateLimiter
	c.mu.Unlock()
	return rl.consume(cost)
}
