package ircd

import (
	"bufio"
	"net"
	"net/textproto"
	"sync"
	"time"
)

// ClientState is the connection state machine:
// UNKNOWN -> REGISTERING -> (CLIENT | SERVER) -> CLOSING.
type ClientState int

const (
	StateUnknown ClientState = iota
	StateRegistering
	StateClient
	StateServer
	StateClosing
)

func (s ClientState) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateRegistering:
		return "registering"
	case StateClient:
		return "client"
	case StateServer:
		return "server"
	case StateClosing:
		return "closing"
	default:
		return "invalid"
	}
}

// capState tracks one side's negotiated capability set, keyed by
// bitmask rather than a map[string]bool so CapMask intersection is
// O(1).
type capState struct {
	Negotiating  bool
	Enabled      CapMask
	RequestedRaw []string // pending REQ list, for ACK/NAK echo
}

// Client is one connected peer — a local user, a linked server, or a
// not-yet-registered socket — tracked through the full ClientState
// machine with separate client/server CapRegistry-backed capability
// masks.
type Client struct {
	mu sync.RWMutex

	conn   net.Conn
	server *Server
	writer *bufio.Writer
	wmu    sync.Mutex

	State ClientState

	UID string // TS6 unique id, assigned on registration
	SID string // originating server id ("" for locally-registered clients until linked)

	Nick     string
	User     string
	Real     string
	Host     string // presented hostname (may be cloaked)
	RealHost string // true connecting hostname, gated behind solanum.chat/realhost
	IP       net.IP
	Password string

	Account string // services account name, "" if not logged in
	Away    string

	Modes UserMode

	OperName  string          // oper{} block name, set by a successful OPER
	OperPrivs map[string]bool // privset keys granted to OperName

	Channels map[string]*Channel

	Caps capState

	Class *ConnClass

	attachedConf *Conf // CLIENT record matched at registration; Ref'd there, Unref'd in removeClient

	flood       *floodState
	rateLimiter *rateLimitState

	ConnectedAt time.Time
	LastActive  time.Time

	quitReason string
	quitOnce   sync.Once
	msgIDGen   *MessageIDGenerator
}

// NewClient wraps conn as a freshly-accepted, unregistered client.
func NewClient(srv *Server, conn net.Conn) *Client {
	now := time.Now()
	c := &Client{
		conn:        conn,
		server:      srv,
		writer:      bufio.NewWriter(conn),
		State:       StateUnknown,
		Channels:    make(map[string]*Channel),
		ConnectedAt: now,
		LastActive:  now,
	}
	if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
		c.Host = host
		c.RealHost = host
		c.IP = net.ParseIP(host)
	}
	c.flood = newFloodState(srv.now)
	c.flood.maxLines = ClampFloodMaxLines(srv.Config.ClientFloodMaxLines)
	return c
}

// Hostmask renders nick!user@host for the client's current identity.
func (c *Client) Hostmask() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return FormatHostmask(c.Nick, c.User, c.Host)
}

// IsOper reports whether the client currently holds operator privilege.
func (c *Client) IsOper() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Modes.Operator
}

// HasPrivilege reports whether the client's oper privset grants key
// (e.g. "oper:general", "oper:kline", "admin").
func (c *Client) HasPrivilege(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Modes.Operator && c.OperPrivs[key]
}

// SetState transitions the client's state machine. Invalid transitions
// are a programming error, not a runtime condition, so this does not
// validate — callers (handlers_register.go, command dispatch) are responsible
// for only calling it along valid edges.
func (c *Client) SetState(s ClientState) {
	c.mu.Lock()
	c.State = s
	c.mu.Unlock()
}

// CurrentState returns the client's state.
func (c *Client) CurrentState() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.State
}

// Send serializes and writes msg to the client, filtering tags by the
// client's enabled capability mask. Safe for concurrent use.
func (c *Client) Send(msg *MsgBuf) error {
	c.mu.RLock()
	caps := c.Caps.Enabled
	c.mu.RUnlock()

	line := msg.Serialize(caps)

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.writer.Write(line); err != nil {
		return err
	}
	return c.writer.Flush()
}

// SendNumeric is a convenience wrapper building and sending a numeric
// reply addressed to the client's current nick (or "*" pre-registration).
func (c *Client) SendNumeric(numeric int, params ...string) error {
	c.mu.RLock()
	target := c.Nick
	c.mu.RUnlock()
	if target == "" {
		target = "*"
	}
	return c.Send(NewNumeric(c.server.Name, numeric, target, params...))
}

// Quit marks the client CLOSING and records the reason; idempotent.
func (c *Client) Quit(reason string) {
	c.quitOnce.Do(func() {
		c.mu.Lock()
		c.State = StateClosing
		c.quitReason = reason
		c.mu.Unlock()
		c.conn.Close()
		c.server.Hooks.FireClientExit(&ClientExitData{Client: c, Reason: reason})
	})
}

// QuitReason returns the reason passed to Quit, or "" if still active.
func (c *Client) QuitReason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.quitReason
}

// ReadLoop reads and dispatches lines until the connection closes or
// the client is quit. It runs on its own goroutine, one per connection
// — the Go runtime netpoller already multiplexes readiness, so a
// hand-rolled epoll/kqueue reactor isn't needed here.
func (c *Client) ReadLoop() {
	defer func() {
		c.Quit("connection closed")
		c.server.removeClient(c)
	}()

	tp := textproto.NewReader(bufio.NewReader(c.conn))
	c.conn.SetReadDeadline(time.Now().Add(c.server.Config.RegistrationTimeout))

	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		if line == "" {
			continue
		}

		c.mu.Lock()
		c.LastActive = time.Now()
		c.mu.Unlock()

		if c.flood.Exceeded() {
			c.server.Stats.incrFloodDrops()
			c.Quit("Excess Flood")
			return
		}

		msg, kind := ParseMsgBuf(line, c.server.clientTagNames)
		if kind == ErrEmptyLine {
			continue
		}
		if kind == ErrTooManyParams || kind == ErrMalformedTag {
			continue
		}
		if kind == ErrTooLong {
			c.SendNumeric(ErrUnknownCommand, "*", "line too long")
			continue
		}

		c.server.Dispatch(c, msg)

		c.conn.SetReadDeadline(time.Now().Add(c.server.Config.IdleTimeout))

		if c.CurrentState() == StateClosing {
			return
		}
	}
}

// debugf logs a per-client debug line prefixed with its hostmask,
// threaded through the server's *log.Logger instead of a package-level
// logger so tests can silence it.
func (c *Client) debugf(format string, args ...interface{}) {
	c.server.Logger.Printf("[%s] "+format, append([]interface{}{c.Hostmask()}, args...)...)
}
