package ircd

import (
	"strings"
	"sync"
	"time"
)

// RegisterCoreCommands wires the dispatch table entries this core
// implements directly (registration, CAP, ping/pong, quit). Channel and
// operator commands are registered by RegisterChannelCommands and
// RegisterOperCommands respectively; together they form the full
// command-dispatch table.
func RegisterCoreCommands(s *Server) {
	s.Commands.Register(&CommandSpec{Name: "CAP", MinParams: 1,
		Unregistered: func(s *Server, c *Client, m *MsgBuf) { s.HandleCAP(c, m) },
		Client:       func(s *Server, c *Client, m *MsgBuf) { s.HandleCAP(c, m) },
	})

	s.Commands.Register(&CommandSpec{Name: "PASS", MinParams: 1,
		Unregistered: handlePass,
	})

	s.Commands.Register(&CommandSpec{Name: "NICK", MinParams: 1,
		Unregistered: handleNick,
		Client:       handleNick,
	})

	s.Commands.Register(&CommandSpec{Name: "USER", MinParams: 4,
		Unregistered: handleUser,
	})

	s.Commands.Register(&CommandSpec{Name: "PING", MinParams: 1,
		Unregistered: handlePing,
		Client:       handlePing,
	})

	s.Commands.Register(&CommandSpec{Name: "PONG", MinParams: 1,
		Unregistered: handlePong,
		Client:       handlePong,
	})

	s.Commands.Register(&CommandSpec{Name: "QUIT",
		Unregistered: handleQuit,
		Client:       handleQuit,
	})

	RegisterChannelCommands(s)
	RegisterOperCommands(s)
}

func handlePass(s *Server, c *Client, m *MsgBuf) {
	c.mu.Lock()
	c.Password = m.Param(0)
	c.mu.Unlock()
}

func handleNick(s *Server, c *Client, m *MsgBuf) {
	nick := m.Param(0)
	if !validNick(nick) {
		c.SendNumeric(ErrUnknownCommand, nick, "erroneous nickname")
		return
	}
	if existing, ok := s.Lookup(nick); ok && existing != c {
		c.SendNumeric(ErrNicknameInUse, nick, "nickname is already in use")
		return
	}

	c.mu.Lock()
	old := c.Nick
	c.Nick = nick
	state := c.State
	c.mu.Unlock()

	s.bindNick(c, nick)
	if old != "" {
		s.mu.Lock()
		delete(s.clients, foldNick(old))
		s.mu.Unlock()
	}

	if state == StateUnknown || state == StateRegistering {
		c.SetState(StateRegistering)
		s.tryCompleteRegistration(c)
	}
}

func validNick(nick string) bool {
	if nick == "" || len(nick) > 30 {
		return false
	}
	for i, r := range nick {
		if i == 0 {
			if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || strings.ContainsRune("[]\\`_^{|}", r)) {
				return false
			}
			continue
		}
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || strings.ContainsRune("[]\\`_^{|}-", r)) {
			return false
		}
	}
	return true
}

func handleUser(s *Server, c *Client, m *MsgBuf) {
	c.mu.Lock()
	c.User = m.Param(0)
	c.Real = m.Param(3)
	c.mu.Unlock()

	c.SetState(StateRegistering)
	s.tryCompleteRegistration(c)
}

func handlePing(s *Server, c *Client, m *MsgBuf) {
	c.Send(&MsgBuf{Prefix: s.Name, Command: "PONG", Params: []string{s.Name}, Trailing: m.Param(0), HasTrail: true})
}

func handlePong(s *Server, c *Client, m *MsgBuf) {
	c.mu.Lock()
	c.LastActive = time.Now()
	c.mu.Unlock()
}

func handleQuit(s *Server, c *Client, m *MsgBuf) {
	reason := "Quit"
	if m.ParamCount() > 0 {
		reason = m.Param(0)
	}
	c.Quit(reason)
}

// tryCompleteRegistration performs the registration sequence once both
// NICK and USER have arrived and capability negotiation (if any) has
// ended: evaluate CLIENT records, apply host spoof, attach class,
// evaluate K-line, then admit the client and send the welcome burst.
// Ident resolution is not performed.
func (s *Server) tryCompleteRegistration(c *Client) {
	c.mu.RLock()
	nick, user, negotiating := c.Nick, c.User, c.Caps.Negotiating
	c.mu.RUnlock()

	if nick == "" || user == "" || negotiating {
		return
	}

	c.mu.RLock()
	host, sockhost, ip := c.Host, c.RealHost, c.IP
	c.mu.RUnlock()

	rec := s.Address.FindAddressConf(host, sockhost, user, strings.TrimPrefix(user, "~"), ip, "")
	if rec == nil || rec.Kind != ConfClient {
		c.SendNumeric(ErrNoPrivileges, "*", "you are not authorized to connect")
		c.Quit("not authorized")
		return
	}
	if rec.Flags&FlagSpoofIP != 0 && rec.HostMask != "" {
		c.mu.Lock()
		c.Host = rec.HostMask
		c.mu.Unlock()
	}

	class := s.classFor(rec.ClassName)
	if class == nil || !class.Attach(ip, rec.Flags&FlagExemptLimits != 0) {
		c.SendNumeric(ErrNoPrivileges, "*", "too many connections from your class")
		c.Quit("class full")
		return
	}
	c.Class = class
	rec.Ref()
	c.mu.Lock()
	c.attachedConf = rec
	c.mu.Unlock()

	if kline := s.Address.FindKLine(host, sockhost, user, ip); kline != nil {
		s.Stats.incrKlineHits()
		c.SendNumeric(ErrYoureBannedCreep, "*", kline.Reason)
		c.Quit("K-lined: " + kline.Reason)
		return
	}

	c.SetState(StateClient)
	c.UID = s.Config.SID + nextLocalUIDSuffix()

	s.Hooks.FireNewLocalUser(c)
	if c.CurrentState() == StateClosing {
		return
	}

	c.SendNumeric(RplWelcome, "Welcome to "+s.Config.NetworkName+", "+c.Hostmask())
	c.SendNumeric(RplYourHost, "Your host is "+s.Name)
	c.SendNumeric(RplCreated, "This server was started some time ago")
	c.SendNumeric(RplMyInfo, s.Name)

	s.Hooks.FireIntroduceClient(c)
}

func (s *Server) classFor(name string) *ConnClass {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.classes[name]
	if !ok {
		cl = NewConnClass(name)
		cl.MaxUsers = -1
		s.classes[name] = cl
	}
	return cl
}

var localUIDCounter uidCounter

type uidCounter struct {
	mu  sync.Mutex
	val int
}

func nextLocalUIDSuffix() string {
	localUIDCounter.mu.Lock()
	defer localUIDCounter.mu.Unlock()
	localUIDCounter.val++
	return base36Pad(localUIDCounter.val, 6)
}

func base36Pad(n, width int) string {
	const digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = digits[n%36]
		n /= 36
	}
	return string(out)
}
