package ircd

import "strings"

// RegisterChannelCommands wires JOIN/PART/PRIVMSG/NOTICE against the
// can_join/can_send access hooks for channels.
func RegisterChannelCommands(s *Server) {
	s.Commands.Register(&CommandSpec{Name: "JOIN", MinParams: 1, Client: handleJoin})
	s.Commands.Register(&CommandSpec{Name: "PART", MinParams: 1, Client: handlePart})
	s.Commands.Register(&CommandSpec{Name: "PRIVMSG", MinParams: 2, Client: handlePrivmsg})
	s.Commands.Register(&CommandSpec{Name: "NOTICE", MinParams: 2, Client: handleNotice})
	s.Commands.Register(&CommandSpec{Name: "MODE", MinParams: 1, Client: handleMode})
}

func (s *Server) channel(name string) *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[name]
	if !ok {
		ch = NewChannel(name)
		s.channels[name] = ch
	}
	return ch
}

func handleJoin(s *Server, c *Client, m *MsgBuf) {
	for _, name := range strings.Split(m.Param(0), ",") {
		if name == "" {
			continue
		}
		ch := s.channel(name)

		if approved, numeric, reason := s.Quarantine.CheckJoin(c, name); approved != 0 {
			c.SendNumeric(numeric, name, reason)
			continue
		}

		if ch.Modes.RegisteredOnly && c.Account == "" {
			c.SendNumeric(ErrNeedRegisteredNick, name, "you need a registered nick to join this channel")
			continue
		}
		if ch.Modes.SSLOnly && !c.Modes.SSL {
			c.SendNumeric(ErrCannotSendToChan, name, "you need a secure connection to join this channel")
			continue
		}

		data := &CanJoinData{Client: c, Channel: ch}
		s.Hooks.FireCanJoin(data)
		if data.Approved != 0 {
			numeric := data.Numeric
			if numeric == 0 {
				numeric = ErrCannotSendToChan
			}
			c.SendNumeric(numeric, name, data.Reason)
			continue
		}

		ch.Join(c)
		c.Channels[name] = ch
		c.Send(&MsgBuf{Prefix: c.Hostmask(), Command: "JOIN", Params: []string{name}})
	}
}

func handlePart(s *Server, c *Client, m *MsgBuf) {
	for _, name := range strings.Split(m.Param(0), ",") {
		ch, ok := c.Channels[name]
		if !ok {
			continue
		}
		reason := ""
		if m.ParamCount() > 1 {
			reason = m.Param(1)
		}
		ch.Part(c)
		delete(c.Channels, name)
		c.Send(&MsgBuf{Prefix: c.Hostmask(), Command: "PART", Params: []string{name}, Trailing: reason, HasTrail: reason != ""})
	}
}

const ctcpDelim = "\x01"

func handlePrivmsg(s *Server, c *Client, m *MsgBuf) {
	deliverMessage(s, c, m, "PRIVMSG")
}

func handleNotice(s *Server, c *Client, m *MsgBuf) {
	deliverMessage(s, c, m, "NOTICE")
}

func deliverMessage(s *Server, c *Client, m *MsgBuf, msgType string) {
	target := m.Param(0)
	text := m.Param(1)

	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		ch, member := c.Channels[target]
		if !member {
			ch = s.channel(target)
		}

		if ch.Modes.NoCTCP && strings.HasPrefix(text, ctcpDelim) && !strings.HasPrefix(text, ctcpDelim+"ACTION") {
			c.SendNumeric(ErrCannotSendToChan, target, "CTCP blocked on this channel")
			return
		}
		if !s.Quarantine.CheckTarget(c, target, false) {
			c.SendNumeric(ErrNoPrivileges, target, "you are quarantined and may not message this channel")
			return
		}

		sendData := &CanSendData{Client: c, Channel: ch}
		s.Hooks.FireCanSend(sendData)
		if sendData.Result == CanSendNo {
			c.SendNumeric(ErrCannotSendToChan, target, "cannot send to channel")
			return
		}

		data := &PrivmsgData{Sender: c, Channel: ch, Text: text, MsgType: msgType}
		s.Hooks.FirePrivmsgChannel(data)
		if data.Approved != 0 {
			return
		}

		out := &MsgBuf{Prefix: c.Hostmask(), Command: msgType, Params: []string{target}, Trailing: text, HasTrail: true}
		s.Hooks.FireOutboundMsgBuf(&OutboundMsgBufData{Client: c, MsgBuf: out})
		for member := range ch.Members() {
			if member != c {
				member.Send(out)
			}
		}
		return
	}

	target2, ok := s.Lookup(target)
	if !ok {
		c.SendNumeric(ErrNoSuchNick, target, "no such nick")
		return
	}

	if !s.Quarantine.CheckTarget(c, "", target2.IsOper()) {
		c.SendNumeric(ErrNoPrivileges, target, "you are quarantined and may not message this user")
		return
	}

	data := &PrivmsgData{Sender: c, Target: target2, Text: text, MsgType: msgType}
	s.Hooks.FirePrivmsgUser(data)
	if data.Approved != 0 {
		return
	}

	out := &MsgBuf{Prefix: c.Hostmask(), Command: msgType, Params: []string{target}, Trailing: text, HasTrail: true}
	s.Hooks.FireOutboundMsgBuf(&OutboundMsgBufData{Client: c, MsgBuf: out})
	target2.Send(out)
}

func handleMode(s *Server, c *Client, m *MsgBuf) {
	target := m.Param(0)
	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		handleChannelMode(s, c, m, target)
		return
	}

	if target != c.Nick {
		c.SendNumeric(ErrUsersDontMatch, target, "cannot change mode for other users")
		return
	}
	if m.ParamCount() < 2 {
		c.SendNumeric(RplUModeIs, c.Modes.String())
		return
	}

	old := c.Modes
	if err := c.Modes.ParseModeString(m.Param(1)); err != nil {
		c.SendNumeric(ErrUModeUnknownFlag, "unknown mode flag")
	}
	s.Hooks.FireUmodeChanged(&UmodeChangedData{Client: c, Old: old})
}

func handleChannelMode(s *Server, c *Client, m *MsgBuf, target string) {
	ch := s.channel(target)
	if m.ParamCount() < 2 {
		c.SendNumeric(RplUModeIs, target)
		return
	}
	add := true
	for _, ch2 := range m.Param(1) {
		switch ch2 {
		case '+':
			add = true
		case '-':
			add = false
		case 'R':
			ch.Modes.RegisteredOnly = add
		case 'S':
			ch.Modes.SSLOnly = add
		case 'C':
			ch.Modes.NoCTCP = add
		case 'z':
			ch.Modes.OpModerated = add
		}
	}
}
