package ircd

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// RegisterOperCommands wires OPER and the access-control management
// commands: KLINE/UNKLINE, DLINE/UNDLINE, XLINE/UNXLINE, RESV/UNRESV,
// their TESTLINE/TESTKLINE/TESTGECOS read-only variants,
// QUARANTINE/UNQUARANTINE, and STATS. Each ban command follows the same
// shape: permission gate, duration+reason parsing, operator
// notification, and (KLINE and DLINE only) disconnection of matching
// clients — against this core's typed Conf/AddressIndex/TempBanStore
// records. Masks are not validated.
func RegisterOperCommands(s *Server) {
	s.Commands.Register(&CommandSpec{Name: "OPER", MinParams: 2, Client: handleOper})

	s.Commands.Register(&CommandSpec{Name: "KLINE", MinParams: 2, Client: handleKline})
	s.Commands.Register(&CommandSpec{Name: "UNKLINE", MinParams: 1, Client: handleUnkline})
	s.Commands.Register(&CommandSpec{Name: "DLINE", MinParams: 2, Client: handleDline})
	s.Commands.Register(&CommandSpec{Name: "UNDLINE", MinParams: 1, Client: handleUndline})
	s.Commands.Register(&CommandSpec{Name: "XLINE", MinParams: 2, Client: handleXline})
	s.Commands.Register(&CommandSpec{Name: "UNXLINE", MinParams: 1, Client: handleUnxline})
	s.Commands.Register(&CommandSpec{Name: "RESV", MinParams: 2, Client: handleResv})
	s.Commands.Register(&CommandSpec{Name: "UNRESV", MinParams: 1, Client: handleUnresv})

	s.Commands.Register(&CommandSpec{Name: "TESTLINE", MinParams: 1, Client: handleTestline})
	s.Commands.Register(&CommandSpec{Name: "TESTKLINE", MinParams: 1, Client: handleTestkline})
	s.Commands.Register(&CommandSpec{Name: "TESTGECOS", MinParams: 1, Client: handleTestgecos})

	s.Commands.Register(&CommandSpec{Name: "QUARANTINE", MinParams: 2, Client: handleQuarantine})
	s.Commands.Register(&CommandSpec{Name: "UNQUARANTINE", MinParams: 1, Client: handleUnquarantine})

	s.Commands.Register(&CommandSpec{Name: "STATS", MinParams: 1, Client: handleStats})
}

// handleOper implements OPER name password. The password may instead be
// "oidc:<raw-id-token>" to take the bearer-token path through
// OperRegistry.AuthenticateToken.
func handleOper(s *Server, c *Client, m *MsgBuf) {
	name := m.Param(0)
	password := m.Param(1)

	var block *OperBlock
	var ok bool
	if rest, found := strings.CutPrefix(password, "oidc:"); found {
		block, ok = s.Opers.AuthenticateToken(context.Background(), rest)
	} else {
		block, ok = s.Opers.Authenticate(name, password)
	}
	if !ok {
		c.SendNumeric(ErrPasswdMismatch, "*", "incorrect oper credentials")
		return
	}

	c.mu.Lock()
	c.Modes.Operator = true
	c.OperName = block.Name
	c.OperPrivs = block.Privileges
	c.mu.Unlock()

	if s.Quarantine.ClearOnLogin(c) {
		c.Send(NewNotice(s.Name, c.Nick, "Quarantine cleared"))
	}

	c.SendNumeric(RplYoureOper, "You are now an IRC operator")
	s.notifyOpers(c.Hostmask() + " is now an operator (" + block.Name + ")")
}

// notifyOpers sends message as a server NOTICE to every currently
// connected, currently-oper local client.
func (s *Server) notifyOpers(message string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cl := range s.clients {
		if cl.IsOper() {
			cl.Send(NewNotice(s.Name, cl.Nick, message))
		}
	}
}

// disconnectMatching closes every local client whose current hostmask
// matches rec, sending the matching K-line/D-line close notice first.
func (s *Server) disconnectMatching(rec *Conf, closeReason string) {
	s.mu.RLock()
	matched := make([]*Client, 0)
	for _, cl := range s.clients {
		if matchesUser(rec, cl.User, strings.TrimPrefix(cl.User, "~")) && matchesHost(rec, cl.Host, cl.RealHost, cl.IP) {
			matched = append(matched, cl)
		}
	}
	s.mu.RUnlock()

	for _, cl := range matched {
		cl.Send(&MsgBuf{Command: "ERROR", Trailing: "Closing Link: " + cl.Host + " [" + closeReason + "]", HasTrail: true})
		cl.Quit(closeReason)
	}
}

// allParams flattens a MsgBuf's positional params plus trailing into
// one slice, the shape the ban-command parsers below scan.
func allParams(m *MsgBuf) []string {
	n := m.ParamCount()
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = m.Param(i)
	}
	return out
}

// banArgs is the parsed shape of "[duration] mask [ON target-server]
// :reason" common to KLINE/DLINE/XLINE/RESV.
type banArgs struct {
	duration time.Duration
	mask     string
	target   string
	reason   string
}

func parseBanArgs(m *MsgBuf) (banArgs, bool) {
	tokens := allParams(m)
	if len(tokens) == 0 {
		return banArgs{}, false
	}

	var out banArgs
	i := 0
	if mins, err := strconv.Atoi(tokens[0]); err == nil {
		out.duration = time.Duration(mins) * time.Minute
		i++
	}
	if i >= len(tokens) {
		return banArgs{}, false
	}
	out.mask = tokens[i]
	i++

	if i < len(tokens) && strings.EqualFold(tokens[i], "ON") {
		i++
		if i < len(tokens) {
			out.target = tokens[i]
			i++
		}
	}
	if i < len(tokens) {
		out.reason = tokens[i]
	} else {
		out.reason = "No reason"
	}
	return out, true
}

func splitUserHost(mask string) (user, host string) {
	if at := strings.IndexByte(mask, '@'); at >= 0 {
		return mask[:at], mask[at+1:]
	}
	return "*", mask
}

// installBan inserts a KILL/DLINE/XLINE/RESV record either as a
// TTL-bucketed local-temporary ban (args.duration > 0) or directly into
// the address index as a permanent local record (args.duration == 0
// means permanent and local-only).
func installBan(s *Server, kind ConfKind, args banArgs, operName string) *Conf {
	user, host := "*", args.mask
	if kind == ConfKill {
		user, host = splitUserHost(args.mask)
	}

	rec := &Conf{
		Kind:      kind,
		UserMask:  user,
		HostMask:  host,
		Reason:    args.reason,
		ClassName: "",
		Created:   s.now(),
	}

	if args.duration > 0 {
		rec.Flags |= FlagTemporary
		rec.Hold = s.now().Add(args.duration)
		s.TempBans.Insert(rec)
	} else {
		s.Address.Insert(rec)
	}

	target := args.target
	if target == "" {
		target = "*"
	}
	s.Hooks.FireBanInstalled(&BanInstalledData{Conf: rec, OperName: operName, Target: target})

	return rec
}

func requirePrivilege(s *Server, c *Client, priv, cmd string) bool {
	if !c.HasPrivilege(priv) {
		c.SendNumeric(ErrNoPrivileges, cmd, "you need the "+priv+" privilege to use this command")
		return false
	}
	return true
}

func handleKline(s *Server, c *Client, m *MsgBuf) {
	if !requirePrivilege(s, c, "oper:kline", "KLINE") {
		return
	}
	args, ok := parseBanArgs(m)
	if !ok {
		c.SendNumeric(ErrNeedMoreParams, "KLINE", "not enough parameters")
		return
	}
	rec := installBan(s, ConfKill, args, c.OperName)
	s.notifyOpers(c.Hostmask() + " added a K-Line for " + args.mask + ": " + args.reason)
	s.disconnectMatching(rec, "K-Lined: "+args.reason)
	c.Send(NewNotice(s.Name, c.Nick, "Added K-Line for "+args.mask))
}

func handleUnkline(s *Server, c *Client, m *MsgBuf) {
	if !requirePrivilege(s, c, "oper:kline", "UNKLINE") {
		return
	}
	mask := m.Param(0)
	user, host := splitUserHost(mask)
	if rec := s.Address.FindKLine(host, host, user, nil); rec != nil {
		s.Address.Remove(rec)
		s.Hooks.FireBanRemoved(&BanRemovedData{Kind: ConfKill, UserMask: rec.UserMask, HostMask: rec.HostMask})
		s.notifyOpers(c.Hostmask() + " removed the K-Line for " + mask)
		c.Send(NewNotice(s.Name, c.Nick, "Removed K-Line for "+mask))
		return
	}
	c.Send(NewNotice(s.Name, c.Nick, "No K-Line found for "+mask))
}

func handleDline(s *Server, c *Client, m *MsgBuf) {
	if !requirePrivilege(s, c, "oper:kline", "DLINE") {
		return
	}
	args, ok := parseBanArgs(m)
	if !ok {
		c.SendNumeric(ErrNeedMoreParams, "DLINE", "not enough parameters")
		return
	}
	rec := installBan(s, ConfDLine, args, c.OperName)
	rec.MaskType = MaskIPv4
	s.notifyOpers(c.Hostmask() + " added a D-Line for " + args.mask + ": " + args.reason)
	s.disconnectMatching(rec, "D-Lined: "+args.reason)
	c.Send(NewNotice(s.Name, c.Nick, "Added D-Line for "+args.mask))
}

func handleUndline(s *Server, c *Client, m *MsgBuf) {
	if !requirePrivilege(s, c, "oper:kline", "UNDLINE") {
		return
	}
	mask := m.Param(0)
	if removeByMaskAndKind(s, ConfDLine, mask) {
		s.notifyOpers(c.Hostmask() + " removed the D-Line for " + mask)
		c.Send(NewNotice(s.Name, c.Nick, "Removed D-Line for "+mask))
		return
	}
	c.Send(NewNotice(s.Name, c.Nick, "No D-Line found for "+mask))
}

func handleXline(s *Server, c *Client, m *MsgBuf) {
	if !requirePrivilege(s, c, "oper:kline", "XLINE") {
		return
	}
	args, ok := parseBanArgs(m)
	if !ok {
		c.SendNumeric(ErrNeedMoreParams, "XLINE", "not enough parameters")
		return
	}
	installBan(s, ConfXLine, args, c.OperName)
	s.notifyOpers(c.Hostmask() + " added an X-Line for " + args.mask + ": " + args.reason)
	c.Send(NewNotice(s.Name, c.Nick, "Added X-Line for "+args.mask))
}

func handleUnxline(s *Server, c *Client, m *MsgBuf) {
	if !requirePrivilege(s, c, "oper:kline", "UNXLINE") {
		return
	}
	if removeByMaskAndKind(s, ConfXLine, m.Param(0)) {
		s.notifyOpers(c.Hostmask() + " removed the X-Line for " + m.Param(0))
		c.Send(NewNotice(s.Name, c.Nick, "Removed X-Line for "+m.Param(0)))
		return
	}
	c.Send(NewNotice(s.Name, c.Nick, "No X-Line found for "+m.Param(0)))
}

func handleResv(s *Server, c *Client, m *MsgBuf) {
	if !requirePrivilege(s, c, "oper:kline", "RESV") {
		return
	}
	args, ok := parseBanArgs(m)
	if !ok {
		c.SendNumeric(ErrNeedMoreParams, "RESV", "not enough parameters")
		return
	}
	kind := ConfResvNick
	if strings.HasPrefix(args.mask, "#") || strings.HasPrefix(args.mask, "&") {
		kind = ConfResvChannel
	}
	installBan(s, kind, args, c.OperName)
	s.notifyOpers(c.Hostmask() + " added a RESV for " + args.mask + ": " + args.reason)
	c.Send(NewNotice(s.Name, c.Nick, "Added RESV for "+args.mask))
}

func handleUnresv(s *Server, c *Client, m *MsgBuf) {
	if !requirePrivilege(s, c, "oper:kline", "UNRESV") {
		return
	}
	mask := m.Param(0)
	kind := ConfResvNick
	if strings.HasPrefix(mask, "#") || strings.HasPrefix(mask, "&") {
		kind = ConfResvChannel
	}
	if removeByMaskAndKind(s, kind, mask) {
		s.notifyOpers(c.Hostmask() + " removed the RESV for " + mask)
		c.Send(NewNotice(s.Name, c.Nick, "Removed RESV for "+mask))
		return
	}
	c.Send(NewNotice(s.Name, c.Nick, "No RESV found for "+mask))
}

// removeByMaskAndKind removes the first live record of kind whose host
// mask matches mask exactly, reporting whether one was found.
func removeByMaskAndKind(s *Server, kind ConfKind, mask string) bool {
	found := false
	forEachConfOfKind(s.Address, kind, func(rec *Conf) {
		if !found && strings.EqualFold(rec.HostMask, mask) {
			s.Address.Remove(rec)
			found = true
			s.Hooks.FireBanRemoved(&BanRemovedData{Kind: kind, UserMask: rec.UserMask, HostMask: rec.HostMask})
		}
	})
	return found
}

// handleTestline implements TESTLINE: reports the record that would
// match, without mutating any per-record match counter (this core
// doesn't track one), so only the report side is implemented.
func handleTestline(s *Server, c *Client, m *MsgBuf) {
	mask := m.Param(0)
	user, host := splitUserHost(mask)
	rec := s.Address.FindAddressConf(host, host, user, strings.TrimPrefix(user, "~"), nil, "")
	if rec == nil {
		c.SendNumeric(RplNotestLine, mask, "no matching line")
		return
	}
	c.SendNumeric(RplTestLine, mask, rec.HostMask, rec.Reason)
}

func handleTestkline(s *Server, c *Client, m *MsgBuf) {
	mask := m.Param(0)
	user, host := splitUserHost(mask)
	rec := s.Address.FindKLine(host, host, user, nil)
	if rec == nil {
		c.SendNumeric(RplNotestLine, mask, "no matching K-Line")
		return
	}
	c.SendNumeric(RplTestLine, mask, rec.HostMask, rec.Reason)
}

func handleTestgecos(s *Server, c *Client, m *MsgBuf) {
	gecos := m.Param(0)
	var match *Conf
	forEachConfOfKind(s.Address, ConfXLine, func(rec *Conf) {
		if match == nil && globMatch(rec.HostMask, gecos) {
			match = rec
		}
	})
	if match == nil {
		c.SendNumeric(RplNotestLine, gecos, "no matching X-Line")
		return
	}
	c.SendNumeric(RplTestMask, gecos, match.HostMask, match.Reason)
}

func handleQuarantine(s *Server, c *Client, m *MsgBuf) {
	if !requirePrivilege(s, c, "oper:general", "QUARANTINE") {
		return
	}
	nick := m.Param(0)
	reason := m.Param(1)
	s.Quarantine.Quarantine(nick, reason)
	if target, ok := s.Lookup(nick); ok {
		s.Quarantine.EnterQuarantine(target, s.Config.PartOnQuarantine)
	}
	s.notifyOpers(c.Hostmask() + " quarantined " + nick + ": " + reason)
	c.Send(NewNotice(s.Name, c.Nick, "Quarantined "+nick))
}

func handleUnquarantine(s *Server, c *Client, m *MsgBuf) {
	if !requirePrivilege(s, c, "oper:general", "UNQUARANTINE") {
		return
	}
	nick := m.Param(0)
	s.Quarantine.Unquarantine(nick)
	if target, ok := s.Lookup(nick); ok {
		s.Quarantine.ClearOnLogin(target)
	}
	s.notifyOpers(c.Hostmask() + " removed quarantine from " + nick)
	c.Send(NewNotice(s.Name, c.Nick, "Unquarantined "+nick))
}
